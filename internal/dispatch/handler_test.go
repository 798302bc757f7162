package dispatch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/dispatch"
	"github.com/frahmantamala/assistant-guard/internal/permission"
	"github.com/frahmantamala/assistant-guard/internal/risk"
	"github.com/frahmantamala/assistant-guard/internal/transport"
	"github.com/frahmantamala/assistant-guard/pkg/logger"
)

var _ = Describe("Handler", func() {
	var handler *dispatch.Handler

	BeforeEach(func() {
		engine := risk.NewEngine(noAdmins{}, logger.Discard(), risk.Options{})
		d := dispatch.NewDispatcher(allowCategories{permission.CategorySystem: true}, engine, nil, logger.Discard()).
			Register(dispatch.SystemInfo, dispatch.NewSystemInfo(time.Now()))
		handler = dispatch.NewHandler(transport.NewBaseHandler(logger.Discard()), d)
	})

	withUser := func(r *http.Request) *http.Request {
		return r.WithContext(internal.ContextWithPrincipal(context.Background(), &internal.Principal{UserID: "u-1"}))
	}

	It("executes a command", func() {
		req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/commands/execute", strings.NewReader(`{"command":"system_info"}`)))
		rec := httptest.NewRecorder()

		handler.Execute(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		var res dispatch.Result
		Expect(json.Unmarshal(rec.Body.Bytes(), &res)).To(Succeed())
		Expect(res.Status).To(Equal(dispatch.StatusSuccess))
	})

	It("answers 403 with the risk details for blocked commands", func() {
		body := `{"command":"system_info","text":"rm -rf /var/lib and drop table users"}`
		rec := httptest.NewRecorder()

		handler.Execute(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/v1/commands/execute", strings.NewReader(body))))

		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(rec.Body.String()).To(ContainSubstring(`"code":"COMMAND_BLOCKED"`))
		Expect(rec.Body.String()).To(ContainSubstring(`"risk_level":"critical"`))
	})

	It("answers 400 for a missing command", func() {
		rec := httptest.NewRecorder()

		handler.Execute(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/v1/commands/execute", strings.NewReader(`{}`))))

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("lists available commands", func() {
		rec := httptest.NewRecorder()

		handler.Available(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/commands/available", nil)))

		var resp dispatch.AvailableResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		for _, c := range resp.Commands {
			Expect(c.Category).To(Equal(permission.CategorySystem))
		}
		Expect(resp.Total).To(BeNumerically(">", 0))
	})
})
