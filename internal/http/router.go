package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAccessRoutes 注册开通/配置/停用与健康检查路由
func (r *Router) RegisterAccessRoutes(a *AccessHandler) {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		a.Health(w, req)
	})

	r.Handle("/access/grant", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		a.Grant(w, req)
	})

	// /user/{corporate_id}/config
	// /user/{corporate_id}/deactivate
	r.Handle("/user/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/user/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch parts[1] {
		case "config":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			a.Config(w, req, parts[0])
		case "deactivate":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			a.Deactivate(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterWebhookRoutes 注册HR生命周期事件路由
func (r *Router) RegisterWebhookRoutes(wh *WebhookHandler) {
	r.Handle("/webhooks/hr-events", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		wh.Receive(w, req)
	})

	r.Handle("/webhooks/events/pending", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		wh.Pending(w, req)
	})

	// /webhooks/events/{id}/process
	r.Handle("/webhooks/events/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/webhooks/events/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[1] != "process" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		wh.MarkProcessed(w, req, parts[0])
	})

	r.Handle("/webhooks/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		wh.Health(w, req)
	})
}

// RegisterRegistryRoutes 注册企业ID登记表路由
func (r *Router) RegisterRegistryRoutes(rh *RegistryHandler) {
	r.Handle("/registry/issue", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rh.Issue(w, req)
	})

	r.Handle("/registry/search", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rh.Search(w, req)
	})

	r.Handle("/registry/export", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rh.Export(w, req)
	})

	// /registry/{id} (GET validate, PATCH status)
	r.Handle("/registry/", func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimPrefix(req.URL.Path, "/registry/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch req.Method {
		case http.MethodGet:
			rh.Validate(w, req, id)
		case http.MethodPatch:
			rh.SetStatus(w, req, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// RegisterBotRoutes 注册消息桥入站路由
func (r *Router) RegisterBotRoutes(bh *BotHandler) {
	r.Handle("/bot/inbound", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		bh.Inbound(w, req)
	})
}
