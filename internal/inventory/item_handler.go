package inventory

import (
	"fmt"
	"strings"

	"flower-backoffice/internal/audit"
	"flower-backoffice/internal/database"
	"flower-backoffice/internal/models"

	"github.com/gofiber/fiber/v2"
)

type ItemResponse struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Unit    string `json:"unit"`
	Variety string `json:"variety"`
	Color   string `json:"color"`
}

type CreateItemRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	Unit    string `json:"unit" validate:"omitempty,max=20"`
	Variety string `json:"variety" validate:"max=100"`
	Color   string `json:"color" validate:"max=50"`
}

type UpdateItemRequest struct {
	Name    *string `json:"name"`
	Unit    *string `json:"unit"`
	Variety *string `json:"variety"`
	Color   *string `json:"color"`
}

func toItemResponse(i models.Item) ItemResponse {
	return ItemResponse{ID: i.ID, Name: i.Name, Unit: i.Unit, Variety: i.Variety, Color: i.Color}
}

// GET /api/items
func ListItemsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var items []models.Item
		if err := database.DB.Order("name asc").Find(&items).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "items could not be listed")
		}

		res := make([]ItemResponse, 0, len(items))
		for _, i := range items {
			res = append(res, toItemResponse(i))
		}
		return c.JSON(res)
	}
}

// POST /api/items (manager+)
func CreateItemHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateItemRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		body.Name = strings.TrimSpace(body.Name)
		body.Unit = strings.TrimSpace(body.Unit)
		if err := validateBody(body); err != nil {
			return err
		}
		if body.Unit == "" {
			body.Unit = "stem"
		}

		var exist models.Item
		if err := database.DB.Where("name = ?", body.Name).First(&exist).Error; err == nil {
			return fiber.NewError(fiber.StatusConflict, "an item with this name already exists")
		}

		item := models.Item{Name: body.Name, Unit: body.Unit, Variety: body.Variety, Color: body.Color}
		if err := database.DB.Create(&item).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "item could not be created")
		}

		if userID, userName, _, err := getUserInfo(c); err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "item",
				EntityID:    item.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("item created: %s", item.Name),
				After:       item,
			})
		}

		return c.Status(fiber.StatusCreated).JSON(toItemResponse(item))
	}
}

// PUT /api/items/:id (manager+)
func UpdateItemHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var item models.Item
		if err := database.DB.First(&item, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "item not found")
		}
		before := item

		var body UpdateItemRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "name cannot be empty")
			}
			item.Name = name
		}
		if body.Unit != nil && strings.TrimSpace(*body.Unit) != "" {
			item.Unit = strings.TrimSpace(*body.Unit)
		}
		if body.Variety != nil {
			item.Variety = *body.Variety
		}
		if body.Color != nil {
			item.Color = *body.Color
		}

		if err := database.DB.Save(&item).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "item could not be updated")
		}

		if userID, userName, _, err := getUserInfo(c); err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "item",
				EntityID:    item.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("item updated: %s", item.Name),
				Before:      before,
				After:       item,
			})
		}

		return c.JSON(toItemResponse(item))
	}
}
