package chat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xuri/excelize/v2"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/kassir/internal/admin"
	"github.com/zombor/kassir/internal/journal"
	"github.com/zombor/kassir/internal/kassa"
	"github.com/zombor/kassir/internal/provider"
	"github.com/zombor/kassir/internal/settings"
	"github.com/zombor/kassir/internal/store"
)

var adminHash []byte

var _ = ginkgo.Describe("Server", func() {
	var (
		kv          *store.BoltKV
		history     *journal.Journal
		receipts    *mockReceipts
		chatService *Service
		hub         *Hub
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
		profileAPI  *ghttp.Server
		userID      string
	)

	setupServer := func() {
		server = NewServerWithMux(ServerDeps{
			Chat:     chatService,
			Settings: settings.NewService(kv, kassa.NewProfileClient(profileAPI.URL(), time.Second), nil),
			Providers: provider.NewRegistryWithValidators(kv,
				map[string]provider.Credentials{provider.OpenAI: {APIKey: "sk-test"}},
				map[string]provider.Validator{
					provider.OpenAI: provider.ValidatorFunc(func(ctx context.Context, creds provider.Credentials) error { return nil }),
				}),
			Auth:    admin.NewAuth(adminHash, "test-secret"),
			Stats:   history,
			History: history,
			Hub:     hub,
		}, auth, http.NewServeMux())

		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	}

	do := func(method, path string, body any, headers ...string) (*http.Response, map[string]any) {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequest(method, ghttpServer.URL()+path, reader)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		if userID != "" {
			req.Header.Set(UserHeader, userID)
		}
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		out := map[string]any{}
		if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
			Expect(json.Unmarshal(raw, &out)).To(Succeed())
		}
		return resp, out
	}

	ginkgo.BeforeEach(func() {
		if adminHash == nil {
			var err error
			adminHash, err = admin.HashPassword("letmein")
			Expect(err).NotTo(HaveOccurred())
		}

		var err error
		dir := ginkgo.GinkgoT().TempDir()
		kv, err = store.NewBoltKV(filepath.Join(dir, "session.db"))
		Expect(err).NotTo(HaveOccurred())
		history, err = journal.Open(filepath.Join(dir, "history.db"))
		Expect(err).NotTo(HaveOccurred())

		receipts = &mockReceipts{
			preview: &kassa.PreviewResponse{Receipt: decode(consultation), OperationType: "sell"},
			confirm: &kassa.ConfirmResponse{Success: true, UUID: "uuid-1", Permalink: "https://check.example/uuid-1"},
		}
		hub = NewHub()
		profileAPI = ghttp.NewServer()
		chatService = NewService(Deps{
			KV:        kv,
			Debouncer: store.NewDebouncer(10 * time.Millisecond),
			Receipts:  receipts,
			Settings:  settings.NewService(kv, nil, nil),
			Journal:   history,
			Feedback:  &mockFeedback{},
			Publisher: hub,
		})
		auth = BasicAuth{}
		userID = "user_test"
		setupServer()
	})

	ginkgo.AfterEach(func() {
		ghttpServer.Close()
		profileAPI.Close()
		chatService.Close()
		history.Close()
		kv.Close()
	})

	ginkgo.Describe("handleIndex", func() {
		ginkgo.It("should serve the page", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("ИИ Кассир"))
		})

		ginkgo.It("should not serve unknown paths", func() {
			resp, _ := do("GET", "/nope", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	ginkgo.Describe("basic auth", func() {
		ginkgo.BeforeEach(func() {
			auth = BasicAuth{Username: "kassa", Password: "secret"}
			setupServer()
		})

		ginkgo.It("should reject requests without credentials", func() {
			resp, _ := do("GET", "/api/catalog", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		ginkgo.It("should accept valid credentials", func() {
			token := base64.StdEncoding.EncodeToString([]byte("kassa:secret"))
			resp, _ := do("GET", "/api/catalog", nil, "Authorization", "Basic "+token)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	ginkgo.Describe("handleCatalog", func() {
		ginkgo.It("should list the fiscal codes", func() {
			resp, body := do("GET", "/api/catalog", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["operation_types"]).To(HaveLen(4))
			Expect(body["vat_types"]).To(HaveLen(6))
		})
	})

	ginkgo.Describe("handleNewUser", func() {
		ginkgo.It("should issue an anonymous id", func() {
			resp, body := do("POST", "/api/users", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(body["user_id"]).To(HavePrefix("user_"))
		})
	})

	ginkgo.Describe("chat routes", func() {
		ginkgo.When("the user id is missing", func() {
			ginkgo.BeforeEach(func() {
				userID = ""
			})

			ginkgo.It("should reject the request", func() {
				resp, body := do("GET", "/api/chat/messages", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(body["error"]).To(Equal("user id required"))
			})
		})

		ginkgo.It("should return the welcome message", func() {
			resp, body := do("GET", "/api/chat/messages", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["messages"]).To(HaveLen(1))
		})

		ginkgo.It("should reject a blank message", func() {
			resp, _ := do("POST", "/api/chat/messages", map[string]string{"message": " "})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		ginkgo.It("should reject malformed bodies", func() {
			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/chat/messages", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set(UserHeader, userID)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		ginkgo.It("should report a missing draft as a conflict", func() {
			resp, _ := do("POST", "/api/chat/draft/confirm", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			resp, _ = do("GET", "/api/chat/draft", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		ginkgo.When("a preview was requested", func() {
			var sendBody map[string]any

			ginkgo.BeforeEach(func() {
				var resp *http.Response
				resp, sendBody = do("POST", "/api/chat/messages", map[string]string{"message": "консультация 5000"})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			ginkgo.It("should return the draft", func() {
				Expect(sendBody["state"]).To(Equal(string(StatePreviewReady)))
				Expect(sendBody["messages"]).To(HaveLen(2))
				d := sendBody["draft"].(map[string]any)
				Expect(d["receipt"].(map[string]any)["total"]).To(BeNumerically("==", 5000))
			})

			ginkgo.It("should apply field edits", func() {
				resp, body := do("PATCH", "/api/chat/draft", map[string]any{"path": "items.0.price", "value": 6000})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(body["receipt"].(map[string]any)["total"]).To(BeNumerically("==", 6000))
			})

			ginkgo.It("should reject a bad path", func() {
				resp, _ := do("PATCH", "/api/chat/draft", map[string]any{"path": "items..price", "value": 1})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})

			ginkgo.It("should reject an index far past the end of the items", func() {
				resp, _ := do("PATCH", "/api/chat/draft", map[string]any{"path": "items.9000000000.price", "value": 1})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				resp, body := do("GET", "/api/chat/draft", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(body["receipt"].(map[string]any)["items"]).To(HaveLen(1))
			})

			ginkgo.It("should toggle edit mode", func() {
				resp, body := do("POST", "/api/chat/draft/edit", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(body["edit_mode"]).To(BeTrue())
			})

			ginkgo.It("should refuse unbalanced payments", func() {
				do("PATCH", "/api/chat/draft", map[string]any{"path": "payments.1", "value": map[string]any{"type": "0", "sum": 10}})
				resp, body := do("POST", "/api/chat/draft/confirm", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(body).To(HaveKey("balance"))
			})

			ginkgo.It("should cancel the draft", func() {
				resp, body := do("DELETE", "/api/chat/draft", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(body["state"]).To(Equal(string(StateIdle)))
			})

			ginkgo.When("the draft is confirmed", func() {
				ginkgo.BeforeEach(func() {
					resp, body := do("POST", "/api/chat/draft/confirm", nil)
					Expect(resp.StatusCode).To(Equal(http.StatusOK))
					Expect(body["state"]).To(Equal(string(StateSettledSuccess)))
				})

				ginkgo.It("should appear in the history", func() {
					resp, body := do("GET", "/api/history?limit=10", nil)
					Expect(resp.StatusCode).To(Equal(http.StatusOK))
					Expect(body["total"]).To(BeNumerically("==", 1))
					receipts := body["receipts"].([]any)
					Expect(receipts[0].(map[string]any)["uuid"]).To(Equal("uuid-1"))
				})

				ginkgo.It("should export the history as a spreadsheet", func() {
					req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/history/export.xlsx", nil)
					Expect(err).NotTo(HaveOccurred())
					req.Header.Set(UserHeader, userID)
					resp, err := http.DefaultClient.Do(req)
					Expect(err).NotTo(HaveOccurred())
					defer resp.Body.Close()
					Expect(resp.StatusCode).To(Equal(http.StatusOK))
					Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("receipts.xlsx"))

					f, err := excelize.OpenReader(resp.Body)
					Expect(err).NotTo(HaveOccurred())
					defer f.Close()
					rows, err := f.GetRows("Чеки")
					Expect(err).NotTo(HaveOccurred())
					Expect(rows).To(HaveLen(2))
				})

				ginkgo.It("should take a vote on the reply", func() {
					_, body := do("GET", "/api/chat/messages", nil)
					messages := body["messages"].([]any)
					last := messages[len(messages)-1].(map[string]any)

					resp, _ := do("POST", "/api/chat/messages/"+last["id"].(string)+"/feedback", map[string]string{"feedback_type": "positive"})
					Expect(resp.StatusCode).To(Equal(http.StatusOK))

					_, body = do("GET", "/api/chat/feedback", nil)
					Expect(body["votes"]).To(HaveKeyWithValue(last["id"], "positive"))
				})
			})
		})

		ginkgo.It("should report unknown messages when voting", func() {
			resp, _ := do("POST", "/api/chat/messages/missing/feedback", map[string]string{"feedback_type": "positive"})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		ginkgo.It("should clear the history", func() {
			do("POST", "/api/chat/messages", map[string]string{"message": "консультация 5000"})
			resp, _ := do("DELETE", "/api/chat/messages", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			_, body := do("GET", "/api/chat/messages", nil)
			Expect(body["messages"]).To(HaveLen(1))
		})
	})

	ginkgo.Describe("settings routes", func() {
		ginkgo.It("should return defaults", func() {
			resp, body := do("GET", "/api/settings", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["sno"]).To(Equal("usn_income"))
			Expect(body["default_vat"]).To(Equal("none"))
		})

		ginkgo.It("should reject unknown codes", func() {
			resp, _ := do("PUT", "/api/settings", map[string]any{"sno": "flat_tax"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		ginkgo.It("should require credentials before loading shops", func() {
			resp, body := do("POST", "/api/settings/shops", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(Equal(settings.ErrCredentialsRequired.Error()))
		})

		ginkgo.When("credentials are saved", func() {
			ginkgo.BeforeEach(func() {
				resp, _ := do("PUT", "/api/settings", map[string]any{"ecomkassa_login": "shop", "ecomkassa_password": "pw"})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				profileAPI.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/"),
					ghttp.VerifyJSON(`{"login":"shop","password":"pw","endpoint":"/api/mobile/v1/profile/firm"}`),
					ghttp.RespondWith(http.StatusOK, `{"errorCode":0,"payload":{"taxIdentity":"7701234567","taxVariant":"osn","stores":[{"storeId":"s1","storeName":"","storeAddress":"shop.ru"}]}}`),
				))
			})

			ginkgo.It("should not return the password", func() {
				resp, body := do("GET", "/api/settings", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(body).NotTo(HaveKey("ecomkassa_password"))
				Expect(body["has_password"]).To(BeTrue())
				Expect(body["ecomkassa_login"]).To(Equal("shop"))
			})

			ginkgo.It("should load and select a shop", func() {
				resp, body := do("POST", "/api/settings/shops", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(body["inn"]).To(Equal("7701234567"))
				shops := body["available_shops"].([]any)
				Expect(shops[0].(map[string]any)["storeName"]).To(Equal("Без названия"))

				resp, body = do("POST", "/api/settings/shops/s1/select", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(body["group_code"]).To(Equal("s1"))
				Expect(body["payment_address"]).To(Equal("shop.ru"))
			})
		})

		ginkgo.It("should reject an unknown shop", func() {
			resp, _ := do("POST", "/api/settings/shops/nope/select", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	ginkgo.Describe("admin routes", func() {
		login := func() string {
			resp, body := do("POST", "/api/admin/login", map[string]string{"password": "letmein"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["expires_in"]).To(BeNumerically("==", 86400))
			return body["token"].(string)
		}

		ginkgo.It("should reject a wrong password", func() {
			resp, body := do("POST", "/api/admin/login", map[string]string{"password": "nope"})
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(body["error"]).To(Equal("Неверный пароль"))
		})

		ginkgo.It("should require a token", func() {
			resp, _ := do("GET", "/api/admin/stats", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp, _ = do("GET", "/api/admin/stats", nil, AdminHeader, "forged")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should serve stats with a valid token", func() {
			resp, body := do("GET", "/api/admin/stats", nil, AdminHeader, login())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["total"]).To(BeNumerically("==", 0))
		})

		ginkgo.It("should list and select providers", func() {
			token := login()
			resp, body := do("GET", "/api/admin/providers", nil, AdminHeader, token)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["providers"]).To(HaveLen(6))
			Expect(body["active_provider"]).To(BeEmpty())

			resp, body = do("POST", "/api/admin/providers", map[string]string{"provider_id": "gemini"}, AdminHeader, token)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(Equal("Secret GEMINI_API_KEY not configured"))

			resp, body = do("POST", "/api/admin/providers", map[string]string{"provider_id": "mistral"}, AdminHeader, token)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(Equal("Invalid provider_id"))

			resp, _ = do("POST", "/api/admin/providers", map[string]string{"provider_id": "openai"}, AdminHeader, token)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			_, body = do("GET", "/api/admin/providers", nil, AdminHeader, token)
			Expect(body["active_provider"]).To(Equal("openai"))
		})

		ginkgo.It("should validate a provider", func() {
			resp, body := do("POST", "/api/admin/providers/openai/validate", nil, AdminHeader, login())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["valid"]).To(BeTrue())
		})

		ginkgo.It("should report providers that cannot be validated", func() {
			resp, _ := do("POST", "/api/admin/providers/gigachat/validate", nil, AdminHeader, login())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("handleEvents", func() {
		ginkgo.It("should stream new messages over a websocket", func() {
			ts := httptest.NewServer(server.Handler())
			defer ts.Close()

			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/events?user_id=" + userID
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			Eventually(func() int { return hub.Subscribers(userID) }).Should(Equal(1))

			_, err = chatService.Send(context.Background(), userID, "консультация 5000", "")
			Expect(err).NotTo(HaveOccurred())

			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			var ev Event
			Expect(conn.ReadJSON(&ev)).To(Succeed())
			Expect(ev.Type).To(Equal(EventMessage))
			Expect(ev.Message.Content).To(Equal("консультация 5000"))
		})
	})
})
