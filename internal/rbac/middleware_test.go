package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"church-messaging/internal/auth"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, churchID, role string, chain ...gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	handlers := []gin.HandlerFunc{func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", churchID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}}
	handlers = append(handlers, chain...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/x", handlers...)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serve(t, "church-A", RoleSuperAdmin, RequireChurch(), RequireAnyRole(RoleAdmin)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_StaffDeniedWhenAdminOnly(t *testing.T) {
	if code := serve(t, "church-A", RoleStaff, RequireChurch(), RequireAnyRole(RoleAdmin)); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serve(t, "church-A", RoleStaff, RequireChurch(), RequireAnyRole(RoleAdmin, RoleStaff)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireChurch(t *testing.T) {
	if code := serve(t, "", RoleAdmin, RequireChurch(), RequireAnyRole(RoleAdmin)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestCanAccessChurch(t *testing.T) {
	admin := auth.WithIdentity(context.Background(), "u", "church-A", RoleAdmin)
	super := auth.WithIdentity(context.Background(), "u", "church-A", RoleSuperAdmin)

	if !CanAccessChurch(admin, "church-A") {
		t.Fatalf("admin should reach own church")
	}
	if CanAccessChurch(admin, "church-B") {
		t.Fatalf("admin must not reach another church")
	}
	if !CanAccessChurch(super, "church-B") {
		t.Fatalf("super admin reaches any church")
	}
	if CanAccessChurch(super, "") {
		t.Fatalf("empty church is never accessible")
	}
	if CanAccessChurch(context.Background(), "church-A") {
		t.Fatalf("anonymous caller has no church")
	}
}
