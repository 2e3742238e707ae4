package inventory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"flower-backoffice/internal/auth"
	"flower-backoffice/internal/database"
	"flower-backoffice/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const IdempotencyHeader = "Idempotency-Key"

var validate = validator.New()

// validateBody turns validator errors into a 400 listing field=tag pairs.
func validateBody(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
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

// Helper: current user from the JWT locals
func getUserInfo(c *fiber.Ctx) (uint, string, *uint, error) {
	userID, ok := c.Locals(auth.CtxUserIDKey).(uint)
	if !ok {
		return 0, "", nil, fiber.NewError(fiber.StatusForbidden, "user missing from token")
	}

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		return 0, "", nil, fiber.NewError(fiber.StatusUnauthorized, "user not found")
	}

	var storeID *uint
	if sPtr, ok := c.Locals(auth.CtxStoreIDKey).(*uint); ok && sPtr != nil {
		storeID = sPtr
	}

	return userID, user.Name, storeID, nil
}

// parseDay accepts "2006-01-02" or RFC3339; empty means today.
func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		y, m, d := time.Now().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.Local), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return t, nil
}

// dayRange is [start of day, start of next day).
func dayRange(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

// margin is (unit - wholesale) * qty, unknown without a wholesale price.
func margin(unit decimal.Decimal, wholesale decimal.NullDecimal, qty int) decimal.NullDecimal {
	if !wholesale.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(unit.Sub(wholesale.Decimal).Mul(decimal.NewFromInt(int64(qty))))
}

func idempotencyKey(c *fiber.Ctx) *string {
	key := strings.TrimSpace(c.Get(IdempotencyHeader))
	if key == "" {
		return nil
	}
	if len(key) > 64 {
		key = key[:64]
	}
	return &key
}

// asFiberError keeps fiber errors raised inside a transaction.
func asFiberError(err error, fallback string) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}
	return fiber.NewError(fiber.StatusInternalServerError, fallback)
}
