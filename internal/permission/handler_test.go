package permission_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/permission"
	"github.com/frahmantamala/assistant-guard/internal/transport"
	"github.com/frahmantamala/assistant-guard/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func withPrincipal(r *http.Request, userID, role string) *http.Request {
	ctx := internal.ContextWithPrincipal(r.Context(), &internal.Principal{UserID: userID, Role: role})
	return r.WithContext(ctx)
}

var _ = Describe("HTTP surface", func() {
	var (
		dir     *fakeDirectory
		service *permission.Service
		router  chi.Router
	)

	BeforeEach(func() {
		dir = newFakeDirectory()
		service = permission.NewService(dir, permission.NewMemoryOverrides(), 16, time.Hour, logger.Discard())
		base := transport.NewBaseHandler(logger.Discard())
		handler := permission.NewHandler(base, service)
		rbac := permission.NewRBACAuthorization(service, base)

		router = chi.NewRouter()
		router.Get("/roles", handler.ListRoles)
		router.Get("/me", handler.MyPermissions)
		router.With(rbac.Middleware(permission.AdminPanel)).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		router.Post("/users/{id}/permissions", handler.GrantPermission)
		router.Delete("/users/{id}/permissions/{permission}", handler.RevokePermission)
		router.Put("/users/{id}/role", handler.ChangeRole)
	})

	serve := func(r *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w
	}

	Describe("RBACAuthorization", func() {
		It("should reject requests without a principal", func() {
			w := serve(httptest.NewRequest(http.MethodGet, "/admin", nil))
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should forbid users lacking the permission", func() {
			w := serve(withPrincipal(httptest.NewRequest(http.MethodGet, "/admin", nil), "u-user", "user"))
			Expect(w.Code).To(Equal(http.StatusForbidden))
			Expect(w.Body.String()).To(ContainSubstring("INSUFFICIENT_PERMISSIONS"))
		})

		It("should pass admins through", func() {
			w := serve(withPrincipal(httptest.NewRequest(http.MethodGet, "/admin", nil), "u-admin", "admin"))
			Expect(w.Code).To(Equal(http.StatusNoContent))
		})
	})

	It("should list the five roles", func() {
		w := serve(httptest.NewRequest(http.MethodGet, "/roles", nil))
		Expect(w.Code).To(Equal(http.StatusOK))

		var resp permission.RolesResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Roles).To(HaveLen(5))
		Expect(resp.Roles[4].DisplayName).To(Equal("Super Administrator"))
	})

	It("should summarise the caller", func() {
		w := serve(withPrincipal(httptest.NewRequest(http.MethodGet, "/me", nil), "u-dev", "developer"))
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"command_executor"`))
	})

	Describe("grant", func() {
		It("should reject unknown permissions", func() {
			req := httptest.NewRequest(http.MethodPost, "/users/u-user/permissions", strings.NewReader(`{"permission":"teleport"}`))
			w := serve(withPrincipal(req, "u-root", "super_admin"))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("should forbid granters without role_management", func() {
			req := httptest.NewRequest(http.MethodPost, "/users/u-user/permissions", strings.NewReader(`{"permission":"system_access"}`))
			w := serve(withPrincipal(req, "u-admin", "admin"))
			Expect(w.Code).To(Equal(http.StatusForbidden))
		})

		It("should grant for super admins", func() {
			req := httptest.NewRequest(http.MethodPost, "/users/u-user/permissions", strings.NewReader(`{"permission":"system_access"}`))
			w := serve(withPrincipal(req, "u-root", "super_admin"))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(service.HasPermission(context.Background(), "u-user", permission.SystemAccess)).To(BeTrue())
		})
	})

	It("should revoke through the path parameter", func() {
		req := httptest.NewRequest(http.MethodDelete, "/users/u-user/permissions/chat", nil)
		w := serve(withPrincipal(req, "u-root", "super_admin"))
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(service.HasPermission(context.Background(), "u-user", permission.Chat)).To(BeFalse())
	})

	It("should validate role changes", func() {
		req := httptest.NewRequest(http.MethodPut, "/users/u-user/role", strings.NewReader(`{"role":"emperor"}`))
		w := serve(withPrincipal(req, "u-root", "super_admin"))
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring("INVALID_ROLE"))
	})
})
