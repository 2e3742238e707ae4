package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"flower-backoffice/internal/auth"
	"flower-backoffice/internal/config"
	"flower-backoffice/internal/database"
	"flower-backoffice/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

type testEnv struct {
	app   *fiber.App
	cfg   *config.Config
	store models.Store
	item  models.Item
	lot   models.Arrival
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	database.DB = db
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	cfg := &config.Config{
		JWTSecret:      strings.Repeat("s", 32),
		CORSOrigins:    "http://localhost:5173",
		Env:            "test",
		MetricsEnabled: true,
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	env := &testEnv{app: New(cfg, log), cfg: cfg}

	env.store = models.Store{Name: "Shibuya", Color: "#e91e63", SortOrder: 1}
	if err := db.Create(&env.store).Error; err != nil {
		t.Fatalf("seed store: %v", err)
	}
	env.item = models.Item{Name: "Rose", Unit: "stem"}
	if err := db.Create(&env.item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	env.lot = models.Arrival{
		ItemID:            env.item.ID,
		Quantity:          100,
		RemainingQuantity: 100,
		WholesalePrice:    decimal.NewNullDecimal(decimal.NewFromInt(80)),
		ArrivedAt:         time.Now(),
	}
	if err := db.Create(&env.lot).Error; err != nil {
		t.Fatalf("seed arrival: %v", err)
	}
	return env
}

// token creates a user with role and signs a JWT for it.
func (e *testEnv) token(t *testing.T, role models.UserRole) string {
	t.Helper()
	u := models.User{
		Name:         string(role),
		Email:        fmt.Sprintf("%s-%d@example.com", role, dbSeq.Add(1)),
		PasswordHash: "x",
		Role:         role,
	}
	if err := database.DB.Create(&u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	tok, err := auth.GenerateToken(e.cfg.JWTSecret, &u)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	out, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, out
}

func (e *testEnv) remaining(t *testing.T) int {
	t.Helper()
	var a models.Arrival
	if err := database.DB.First(&a, e.lot.ID).Error; err != nil {
		t.Fatalf("reload arrival: %v", err)
	}
	return a.RemainingQuantity
}

func (e *testEnv) transferBody(qty int) map[string]any {
	return map[string]any{
		"store_id":   e.store.ID,
		"item_id":    e.item.ID,
		"arrival_id": e.lot.ID,
		"quantity":   qty,
		"unit_price": "120",
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, "GET", "/api/arrivals", "", nil, nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp, _ = env.do(t, "GET", "/health", "", nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestCreateTransferDecrementsStock(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleStaff)

	resp, body := env.do(t, "POST", "/api/transfers", tok, env.transferBody(30), nil)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}

	var got struct {
		Quantity       int                 `json:"quantity"`
		WholesalePrice decimal.NullDecimal `json:"wholesale_price"`
		Margin         decimal.NullDecimal `json:"margin"`
		StoreName      string              `json:"store_name"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.StoreName != "Shibuya" {
		t.Errorf("store_name = %q", got.StoreName)
	}
	if !got.WholesalePrice.Valid || !got.WholesalePrice.Decimal.Equal(decimal.NewFromInt(80)) {
		t.Errorf("wholesale should fall back to the arrival's price, got %v", got.WholesalePrice)
	}
	if !got.Margin.Valid || !got.Margin.Decimal.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("margin = %v, want 1200", got.Margin)
	}
	if r := env.remaining(t); r != 70 {
		t.Errorf("remaining = %d, want 70", r)
	}

	var logs int64
	database.DB.Model(&models.AuditLog{}).Where("entity_type = ?", "transfer").Count(&logs)
	if logs != 1 {
		t.Errorf("audit logs = %d, want 1", logs)
	}
}

func TestCreateTransferRefusesOverdraw(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleStaff)

	resp, body := env.do(t, "POST", "/api/transfers", tok, env.transferBody(101), nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(string(body), "insufficient stock") {
		t.Errorf("body = %s", body)
	}
	if r := env.remaining(t); r != 100 {
		t.Errorf("remaining = %d, want 100", r)
	}
	var n int64
	database.DB.Model(&models.Transfer{}).Count(&n)
	if n != 0 {
		t.Errorf("transfers = %d, want 0", n)
	}
}

func TestCreateTransferReplaysIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleStaff)
	h := map[string]string{"Idempotency-Key": "3f0c7c1e-1111-4e0b-9d7a-000000000001"}

	resp, first := env.do(t, "POST", "/api/transfers", tok, env.transferBody(10), h)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("first status = %d body=%s", resp.StatusCode, first)
	}
	resp, second := env.do(t, "POST", "/api/transfers", tok, env.transferBody(10), h)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("replay status = %d, want 200", resp.StatusCode)
	}

	var a, b struct {
		ID uint `json:"id"`
	}
	_ = json.Unmarshal(first, &a)
	_ = json.Unmarshal(second, &b)
	if a.ID == 0 || a.ID != b.ID {
		t.Errorf("replay returned id %d, want %d", b.ID, a.ID)
	}
	if r := env.remaining(t); r != 90 {
		t.Errorf("remaining = %d, want 90 (decremented once)", r)
	}
}

func TestCreateTransferValidation(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleStaff)

	resp, body := env.do(t, "POST", "/api/transfers", tok, map[string]any{"quantity": 0}, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var e struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &e)
	for _, want := range []string{"validation failed", "storeid=required", "quantity=gt"} {
		if !strings.Contains(e.Error, want) {
			t.Errorf("error %q missing %q", e.Error, want)
		}
	}
}

func TestDeleteTransferRestoresStock(t *testing.T) {
	env := newTestEnv(t)
	staff := env.token(t, models.RoleStaff)
	manager := env.token(t, models.RoleManager)

	_, body := env.do(t, "POST", "/api/transfers", staff, env.transferBody(25), nil)
	var tr struct {
		ID uint `json:"id"`
	}
	_ = json.Unmarshal(body, &tr)

	path := fmt.Sprintf("/api/transfers/%d", tr.ID)
	resp, _ := env.do(t, "DELETE", path, staff, nil, nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("staff delete status = %d, want 403", resp.StatusCode)
	}
	resp, _ = env.do(t, "DELETE", path, manager, nil, nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("manager delete status = %d, want 204", resp.StatusCode)
	}
	if r := env.remaining(t); r != 100 {
		t.Errorf("remaining = %d, want 100", r)
	}
}

func TestDisposals(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleStaff)

	bad := map[string]any{"item_id": env.item.ID, "arrival_id": env.lot.ID, "quantity": 5, "reason": "stolen"}
	resp, body := env.do(t, "POST", "/api/disposals", tok, bad, nil)
	if resp.StatusCode != fiber.StatusBadRequest || !strings.Contains(string(body), "reason=oneof") {
		t.Fatalf("unknown reason: status=%d body=%s", resp.StatusCode, body)
	}

	ok := map[string]any{"item_id": env.item.ID, "arrival_id": env.lot.ID, "quantity": 5, "reason": "damage"}
	resp, body = env.do(t, "POST", "/api/disposals", tok, ok, map[string]string{"Idempotency-Key": "d-1"})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
	resp, _ = env.do(t, "POST", "/api/disposals", tok, ok, map[string]string{"Idempotency-Key": "d-1"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("replay status = %d", resp.StatusCode)
	}
	if r := env.remaining(t); r != 95 {
		t.Errorf("remaining = %d, want 95", r)
	}
}

func TestPriceChangesLatest(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleStaff)

	for _, p := range [][2]string{{"80", "120"}, {"120", "150"}} {
		body := map[string]any{"item_id": env.item.ID, "old_price": p[0], "new_price": p[1]}
		resp, out := env.do(t, "POST", "/api/transfers/price-changes", tok, body, nil)
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("status = %d body=%s", resp.StatusCode, out)
		}
	}

	_, out := env.do(t, "GET", "/api/transfers/price-changes-latest", tok, nil, nil)
	var latest map[string]decimal.Decimal
	if err := json.Unmarshal(out, &latest); err != nil {
		t.Fatalf("decode: %v (%s)", err, out)
	}
	if got := latest[fmt.Sprint(env.item.ID)]; !got.Equal(decimal.NewFromInt(150)) {
		t.Errorf("latest = %s, want 150", got)
	}

	_, out = env.do(t, "GET", fmt.Sprintf("/api/transfers/price-changes/%d", env.item.ID), tok, nil, nil)
	var hist []struct {
		NewPrice decimal.Decimal `json:"new_price"`
	}
	_ = json.Unmarshal(out, &hist)
	if len(hist) != 2 || !hist[0].NewPrice.Equal(decimal.NewFromInt(150)) {
		t.Errorf("history should be newest first, got %s", out)
	}
}

func TestArrivalsAcceptBatchAndFilterStock(t *testing.T) {
	env := newTestEnv(t)
	manager := env.token(t, models.RoleManager)

	batch := []map[string]any{
		{"item_name": "Tulip", "quantity": 40, "wholesale_price": "50"},
		{"item_id": env.item.ID, "quantity": 20},
	}
	resp, out := env.do(t, "POST", "/api/arrivals", manager, batch, nil)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d body=%s", resp.StatusCode, out)
	}
	var created []struct {
		ItemName          string `json:"item_name"`
		RemainingQuantity int    `json:"remaining_quantity"`
	}
	_ = json.Unmarshal(out, &created)
	if len(created) != 2 || created[0].ItemName != "Tulip" || created[0].RemainingQuantity != 40 {
		t.Fatalf("created = %+v", created)
	}

	database.DB.Model(&models.Arrival{}).Where("id = ?", env.lot.ID).Update("remaining_quantity", 0)

	_, out = env.do(t, "GET", "/api/arrivals?in_stock=true", manager, nil, nil)
	var listed []struct {
		ID uint `json:"id"`
	}
	_ = json.Unmarshal(out, &listed)
	if len(listed) != 2 {
		t.Errorf("in-stock arrivals = %d, want 2", len(listed))
	}
	for _, a := range listed {
		if a.ID == env.lot.ID {
			t.Errorf("sold-out arrival %d listed", a.ID)
		}
	}

	staff := env.token(t, models.RoleStaff)
	resp, _ = env.do(t, "POST", "/api/arrivals", staff, batch[:1], nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("staff create status = %d, want 403", resp.StatusCode)
	}
}

func TestExportTransfers(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleStaff)

	env.do(t, "POST", "/api/transfers", tok, env.transferBody(12), nil)

	day := time.Now().Format("2006-01-02")
	resp, out := env.do(t, "GET", "/api/transfers/export?date="+day, tok, nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, out)
	}

	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	if v, _ := f.GetCellValue("Transfers", "B1"); v != "Shibuya" {
		t.Errorf("B1 = %q", v)
	}
	if v, _ := f.GetCellValue("Transfers", "A2"); v != "Rose" {
		t.Errorf("A2 = %q", v)
	}
	if v, _ := f.GetCellValue("Transfers", "B2"); v != "12" {
		t.Errorf("B2 = %q", v)
	}
	if v, _ := f.GetCellValue("Details", "G2"); v != "480" {
		t.Errorf("margin G2 = %q, want 480", v)
	}
}

func TestAdminStoresAndAudit(t *testing.T) {
	env := newTestEnv(t)
	adminTok := env.token(t, models.RoleAdmin)
	boss := env.token(t, models.RoleBoss)

	body := map[string]any{"name": "Ebisu", "color": "#00ff00", "sort_order": 0}
	resp, _ := env.do(t, "POST", "/api/admin/stores", boss, body, nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("boss status = %d, want 403", resp.StatusCode)
	}
	resp, out := env.do(t, "POST", "/api/admin/stores", adminTok, body, nil)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d body=%s", resp.StatusCode, out)
	}

	_, out = env.do(t, "GET", "/api/stores", boss, nil, nil)
	var stores []struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(out, &stores)
	if len(stores) != 2 || stores[0].Name != "Ebisu" {
		t.Errorf("stores should be ordered by sort_order, got %s", out)
	}

	resp, _ = env.do(t, "GET", "/api/audit-logs", boss, nil, nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("boss audit status = %d, want 403", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "GET", "/health", "", nil, nil)

	resp, out := env.do(t, "GET", "/metrics", "", nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(out), "flower_http_requests_total") {
		t.Errorf("metrics output missing request counter")
	}
}

func TestRegisterAdminThenLogin(t *testing.T) {
	env := newTestEnv(t)

	reg := map[string]any{"name": "Owner", "email": "Owner@Example.com", "password": "secret-pass"}
	resp, out := env.do(t, "POST", "/api/auth/register-admin", "", reg, nil)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("register status = %d body=%s", resp.StatusCode, out)
	}
	resp, _ = env.do(t, "POST", "/api/auth/register-admin", "", reg, nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("second register status = %d, want 403", resp.StatusCode)
	}

	login := map[string]any{"email": "owner@example.com", "password": "secret-pass"}
	resp, out = env.do(t, "POST", "/api/auth/login", "", login, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("login status = %d body=%s", resp.StatusCode, out)
	}
	var lr struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(out, &lr)

	resp, out = env.do(t, "GET", "/api/auth/me", lr.Token, nil, nil)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(out), `"role":"admin"`) {
		t.Errorf("me: status=%d body=%s", resp.StatusCode, out)
	}

	login["password"] = "wrong"
	resp, _ = env.do(t, "POST", "/api/auth/login", "", login, nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", resp.StatusCode)
	}
}

func TestTransferChart(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleBoss)

	env.do(t, "POST", "/api/transfers", tok, env.transferBody(30), nil)
	env.do(t, "POST", "/api/disposals", tok, map[string]any{
		"item_id": env.item.ID, "arrival_id": env.lot.ID, "quantity": 4, "reason": "other",
	}, nil)

	resp, out := env.do(t, "GET", "/api/dashboard/transfer-chart?period=daily&count=3", tok, nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, out)
	}
	var chart struct {
		Points []struct {
			Label     string          `json:"label"`
			Quantity  int             `json:"quantity"`
			Sales     decimal.Decimal `json:"sales"`
			Margin    decimal.Decimal `json:"margin"`
			Disposals int             `json:"disposals"`
		} `json:"points"`
	}
	if err := json.Unmarshal(out, &chart); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(chart.Points) != 3 {
		t.Fatalf("points = %d, want 3", len(chart.Points))
	}
	today := chart.Points[2]
	if today.Label != time.Now().Format("2006-01-02") {
		t.Errorf("last label = %s", today.Label)
	}
	if today.Quantity != 30 || !today.Sales.Equal(decimal.NewFromInt(3600)) || !today.Margin.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("today = %+v", today)
	}
	if today.Disposals != 4 {
		t.Errorf("disposals = %d, want 4", today.Disposals)
	}
}

func TestSupplyTransfers(t *testing.T) {
	env := newTestEnv(t)
	manager := env.token(t, models.RoleManager)

	resp, body := env.do(t, "POST", "/api/supplies", manager, map[string]any{
		"name": "Wrapping paper", "unit": "sheet", "stock_quantity": 20,
	}, nil)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create supply: %d %s", resp.StatusCode, body)
	}
	var supply struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(body, &supply); err != nil {
		t.Fatalf("decode supply: %v", err)
	}

	req := map[string]any{"supply_id": supply.ID, "store_id": env.store.ID, "quantity": 15}
	resp, body = env.do(t, "POST", "/api/supplies/transfers", manager, req, nil)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("supply transfer: %d %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, "POST", "/api/supplies/transfers", manager, req, nil)
	if resp.StatusCode != fiber.StatusBadRequest || !strings.Contains(string(body), "insufficient stock") {
		t.Fatalf("overdraw: %d %s", resp.StatusCode, body)
	}

	var s models.Supply
	database.DB.First(&s, supply.ID)
	if s.StockQuantity != 5 {
		t.Errorf("stock_quantity = %d, want 5", s.StockQuantity)
	}

	resp, body = env.do(t, "GET", "/api/supplies/transfers", manager, nil, nil)
	var list []struct {
		StoreName string `json:"store_name"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v (%s)", err, body)
	}
	if len(list) != 1 || list[0].StoreName != "Shibuya" || list[0].Quantity != 15 {
		t.Errorf("supply transfers = %+v", list)
	}
}

func TestCreateTransferConcurrentKeyReplaysStoredRow(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleStaff)
	key := "3f0c7c1e-1111-4e0b-9d7a-000000000002"

	// another request with the same key commits right after this one's lookup
	var fired atomic.Bool
	var winner models.Transfer
	err := database.DB.Callback().Query().After("gorm:query").Register("test:concurrent_key", func(tx *gorm.DB) {
		if tx.Statement.Table != "transfers" || !strings.Contains(tx.Statement.SQL.String(), "idempotency_key") {
			return
		}
		if !fired.CompareAndSwap(false, true) {
			return
		}
		k := key
		winner = models.Transfer{
			StoreID:        env.store.ID,
			ItemID:         env.item.ID,
			Quantity:       10,
			UnitPrice:      decimal.NewFromInt(120),
			TransferredAt:  time.Now(),
			IdempotencyKey: &k,
		}
		if err := database.DB.Session(&gorm.Session{NewDB: true}).Omit("Store", "Item", "Arrival").Create(&winner).Error; err != nil {
			t.Errorf("insert concurrent transfer: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	resp, body := env.do(t, "POST", "/api/transfers", tok, env.transferBody(10), map[string]string{"Idempotency-Key": key})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d body=%s, want 200", resp.StatusCode, body)
	}
	var got struct {
		ID uint `json:"id"`
	}
	_ = json.Unmarshal(body, &got)
	if got.ID == 0 || got.ID != winner.ID {
		t.Errorf("returned id %d, want stored %d", got.ID, winner.ID)
	}
	if r := env.remaining(t); r != 100 {
		t.Errorf("remaining = %d, want 100 (losing request rolled back)", r)
	}
	var n int64
	database.DB.Model(&models.Transfer{}).Count(&n)
	if n != 1 {
		t.Errorf("transfers = %d, want 1", n)
	}
}

func (e *testEnv) lastLog(t *testing.T, entityType string, action models.AuditAction) models.AuditLog {
	t.Helper()
	var l models.AuditLog
	if err := database.DB.Where("entity_type = ? AND action = ?", entityType, action).
		Order("id desc").First(&l).Error; err != nil {
		t.Fatalf("audit log %s/%s: %v", entityType, action, err)
	}
	return l
}

func TestUndoTransferCreateRestoresStock(t *testing.T) {
	env := newTestEnv(t)
	staff := env.token(t, models.RoleStaff)
	admin := env.token(t, models.RoleAdmin)

	resp, body := env.do(t, "POST", "/api/transfers", staff, env.transferBody(30), nil)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, body)
	}
	logEntry := env.lastLog(t, "transfer", models.AuditActionCreate)
	path := fmt.Sprintf("/api/audit-logs/%d/undo", logEntry.ID)

	resp, _ = env.do(t, "POST", path, staff, nil, nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("staff undo status = %d, want 403", resp.StatusCode)
	}

	resp, body = env.do(t, "POST", path, admin, nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("undo: %d %s", resp.StatusCode, body)
	}
	if r := env.remaining(t); r != 100 {
		t.Errorf("remaining = %d, want 100", r)
	}
	var n int64
	database.DB.Model(&models.Transfer{}).Count(&n)
	if n != 0 {
		t.Errorf("transfers = %d, want 0", n)
	}

	var marked models.AuditLog
	database.DB.First(&marked, logEntry.ID)
	if !marked.IsUndone || marked.UndoneBy == nil || marked.UndoneAt == nil {
		t.Errorf("log not marked undone: %+v", marked)
	}
	env.lastLog(t, "transfer", models.AuditActionUndo)

	resp, _ = env.do(t, "POST", path, admin, nil, nil)
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("second undo status = %d, want 409", resp.StatusCode)
	}
}

func TestUndoTransferDeleteBooksItAgain(t *testing.T) {
	env := newTestEnv(t)
	manager := env.token(t, models.RoleManager)
	admin := env.token(t, models.RoleAdmin)

	resp, body := env.do(t, "POST", "/api/transfers", manager, env.transferBody(20), nil)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, body)
	}
	var created struct {
		ID uint `json:"id"`
	}
	_ = json.Unmarshal(body, &created)

	resp, _ = env.do(t, "DELETE", fmt.Sprintf("/api/transfers/%d", created.ID), manager, nil, nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if r := env.remaining(t); r != 100 {
		t.Fatalf("remaining after delete = %d, want 100", r)
	}

	logEntry := env.lastLog(t, "transfer", models.AuditActionDelete)
	resp, body = env.do(t, "POST", fmt.Sprintf("/api/audit-logs/%d/undo", logEntry.ID), admin, nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("undo: %d %s", resp.StatusCode, body)
	}
	if r := env.remaining(t); r != 80 {
		t.Errorf("remaining = %d, want 80", r)
	}
	var tr models.Transfer
	if err := database.DB.First(&tr).Error; err != nil {
		t.Fatalf("transfer not booked again: %v", err)
	}
	if tr.Quantity != 20 || !tr.Margin.Valid || !tr.Margin.Decimal.Equal(decimal.NewFromInt(800)) {
		t.Errorf("restored transfer = qty %d margin %v", tr.Quantity, tr.Margin)
	}
}

func TestUndoDisposalAndRejectsPriceChange(t *testing.T) {
	env := newTestEnv(t)
	staff := env.token(t, models.RoleStaff)
	admin := env.token(t, models.RoleAdmin)

	resp, body := env.do(t, "POST", "/api/disposals", staff, map[string]any{
		"item_id": env.item.ID, "arrival_id": env.lot.ID, "quantity": 5, "reason": "damage",
	}, nil)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("disposal: %d %s", resp.StatusCode, body)
	}
	logEntry := env.lastLog(t, "disposal", models.AuditActionCreate)
	resp, body = env.do(t, "POST", fmt.Sprintf("/api/audit-logs/%d/undo", logEntry.ID), admin, nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("undo disposal: %d %s", resp.StatusCode, body)
	}
	if r := env.remaining(t); r != 100 {
		t.Errorf("remaining = %d, want 100", r)
	}

	resp, body = env.do(t, "POST", "/api/transfers/price-changes", staff, map[string]any{
		"item_id": env.item.ID, "old_price": "80", "new_price": "120",
	}, nil)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("price change: %d %s", resp.StatusCode, body)
	}
	logEntry = env.lastLog(t, "price_change", models.AuditActionCreate)
	resp, _ = env.do(t, "POST", fmt.Sprintf("/api/audit-logs/%d/undo", logEntry.ID), admin, nil, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("price change undo status = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.do(t, "POST", "/api/audit-logs/9999/undo", admin, nil, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("missing log status = %d, want 404", resp.StatusCode)
	}
}
