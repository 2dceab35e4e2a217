package httpapi

import (
	"net/http"
	"sort"

	"biomapper/internal/domain"
	"biomapper/internal/resolver"

	"go.uber.org/zap"
)

// MapperHandler 标识符解析 HTTP 接口
type MapperHandler struct {
	resolver *resolver.Resolver
	logger   *zap.Logger
}

func NewMapperHandler(r *resolver.Resolver, logger *zap.Logger) *MapperHandler {
	return &MapperHandler{resolver: r, logger: logger}
}

// resolveParams resolve / tables 系接口的公共查询参数
type resolveParams struct {
	From     domain.Namespace
	To       domain.Namespace
	Organism domain.Organism
}

func parseResolveParams(from, to, organism string) (resolveParams, string) {
	if from == "" || to == "" {
		return resolveParams{}, "from and to namespaces are required"
	}
	org, err := domain.ParseOrganism(organism)
	if err != nil {
		return resolveParams{}, err.Error()
	}
	return resolveParams{
		From:     domain.Namespace(from),
		To:       domain.Namespace(to),
		Organism: org,
	}, ""
}

// Resolve GET /mapper/api/v1/resolve?id=&from=&to=&organism=
func (h *MapperHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params, msg := parseResolveParams(q.Get("from"), q.Get("to"), q.Get("organism"))
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, Fail(msg))
		return
	}

	ids, err := h.resolver.Resolve(r.Context(), q.Get("id"), params.From, params.To, params.Organism)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"ids": sortedSlice(ids),
	}))
}

// ResolveBatch POST /mapper/api/v1/resolve-batch
func (h *MapperHandler) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs      []string `json:"ids"`
		From     string   `json:"from"`
		To       string   `json:"to"`
		Organism string   `json:"organism"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	params, msg := parseResolveParams(req.From, req.To, req.Organism)
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, Fail(msg))
		return
	}

	ids, err := h.resolver.ResolveBatch(r.Context(), req.IDs, params.From, params.To, params.Organism)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"ids": sortedSlice(ids),
	}))
}

// TableExists GET /mapper/api/v1/tables/exists?from=&to=&organism=
func (h *MapperHandler) TableExists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params, msg := parseResolveParams(q.Get("from"), q.Get("to"), q.Get("organism"))
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, Fail(msg))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"exists": h.resolver.HasTable(params.From, params.To, params.Organism),
	}))
}

// InvalidateTables POST /mapper/api/v1/tables/invalidate
func (h *MapperHandler) InvalidateTables(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From     string `json:"from"`
		To       string `json:"to"`
		Organism string `json:"organism"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	params, msg := parseResolveParams(req.From, req.To, req.Organism)
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, Fail(msg))
		return
	}

	h.resolver.Invalidate(params.From, params.To, params.Organism)
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"invalidated": true,
	}))
}

func sortedSlice(ids domain.IDSet) []string {
	out := ids.Slice()
	sort.Strings(out)
	return out
}
