package admin

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"flower-backoffice/internal/database"
	"flower-backoffice/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

type StoreResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	SortOrder int    `json:"sort_order"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"created_at"`
}

type CreateStoreRequest struct {
	Name      string  `json:"name" validate:"required,max=100"`
	Color     string  `json:"color" validate:"omitempty,hexcolor"`
	SortOrder int     `json:"sort_order"`
	Address   string  `json:"address" validate:"max=255"`
	Phone     *string `json:"phone"` // optional
}

type UpdateStoreRequest struct {
	Name      *string `json:"name"`
	Color     *string `json:"color"`
	SortOrder *int    `json:"sort_order"`
	Address   *string `json:"address"`
	Phone     *string `json:"phone"`
}

type CreateStoreUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=boss manager staff"`
}

type StoreUserResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	StoreID   *uint  `json:"store_id"`
	CreatedAt string `json:"created_at"`
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s=%s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	sort.Strings(parts)
	return fiber.NewError(fiber.StatusBadRequest, "validation failed: "+strings.Join(parts, ", "))
}

func toStoreResponse(s models.Store) StoreResponse {
	return StoreResponse{
		ID:        s.ID,
		Name:      s.Name,
		Color:     s.Color,
		SortOrder: s.SortOrder,
		Address:   s.Address,
		Phone:     s.Phone,
		CreatedAt: s.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ----------------------------------------
// STORE CRUD
// ----------------------------------------

func CreateStoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateStoreRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if err := validate.Struct(body); err != nil {
			return validationError(err)
		}

		store := models.Store{
			Name:      body.Name,
			Color:     body.Color,
			SortOrder: body.SortOrder,
			Address:   body.Address,
		}
		if body.Phone != nil {
			store.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.Create(&store).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "store could not be created")
		}

		return c.Status(fiber.StatusCreated).JSON(toStoreResponse(store))
	}
}

// GET /api/stores, in grid column order
func ListStoresHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var stores []models.Store
		if err := database.DB.Order("sort_order asc, id asc").Find(&stores).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "stores could not be listed")
		}

		res := make([]StoreResponse, 0, len(stores))
		for _, s := range stores {
			res = append(res, toStoreResponse(s))
		}

		return c.JSON(res)
	}
}

func UpdateStoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var store models.Store
		if err := database.DB.First(&store, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "store not found")
		}

		var body UpdateStoreRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "store name cannot be empty")
			}
			store.Name = name
		}
		if body.Color != nil {
			if err := validate.Var(*body.Color, "omitempty,hexcolor"); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "color must be a hex colour like #e91e63")
			}
			store.Color = *body.Color
		}
		if body.SortOrder != nil {
			store.SortOrder = *body.SortOrder
		}
		if body.Address != nil {
			store.Address = *body.Address
		}
		if body.Phone != nil {
			store.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.Save(&store).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "store could not be updated")
		}

		return c.JSON(toStoreResponse(store))
	}
}

// DELETE refuses stores that already have transfers booked.
func DeleteStoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var used int64
		database.DB.Model(&models.Transfer{}).Where("store_id = ?", id).Count(&used)
		if used > 0 {
			return fiber.NewError(fiber.StatusConflict, "store has transfers and cannot be deleted")
		}

		if err := database.DB.Delete(&models.Store{}, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "store could not be deleted")
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ----------------------------------------
// STORE USERS
// POST /api/admin/stores/:id/users
// ----------------------------------------

func CreateStoreUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var store models.Store
		if err := database.DB.First(&store, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "store not found")
		}

		var body CreateStoreUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		body.Name = strings.TrimSpace(body.Name)
		if err := validate.Struct(body); err != nil {
			return validationError(err)
		}

		var exist models.User
		if err := database.DB.Where("email = ?", body.Email).First(&exist).Error; err == nil {
			return fiber.NewError(fiber.StatusBadRequest, "email is already registered")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "password could not be hashed")
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.UserRole(body.Role),
			StoreID:      &store.ID,
		}

		if err := database.DB.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "user could not be created")
		}

		return c.Status(fiber.StatusCreated).JSON(toStoreUserResponse(user))
	}
}

// GET /api/admin/stores/:id/users
func ListStoreUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var users []models.User
		if err := database.DB.
			Where("store_id = ?", c.Params("id")).
			Order("created_at DESC").
			Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "users could not be listed")
		}

		res := make([]StoreUserResponse, 0, len(users))
		for _, u := range users {
			res = append(res, toStoreUserResponse(u))
		}
		return c.JSON(res)
	}
}

func toStoreUserResponse(u models.User) StoreUserResponse {
	return StoreUserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		StoreID:   u.StoreID,
		CreatedAt: u.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
