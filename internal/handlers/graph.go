package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/xelth-com/examroom/internal/graph"
	"github.com/xelth-com/examroom/internal/websocket"
)

// GraphHandler exposes read-only views of the relay graph
type GraphHandler struct {
	hub *websocket.Hub
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(hub *websocket.Hub) *GraphHandler {
	return &GraphHandler{hub: hub}
}

// RegisterRoutes registers graph routes
func (gh *GraphHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/graph", gh.Summary).Methods("GET")
	r.HandleFunc("/graph/{path:.+}", gh.GetNode).Methods("GET")
}

// NodeView is the JSON shape of one node and its direct children
type NodeView struct {
	Path     string                     `json:"path"`
	Fields   map[string]json.RawMessage `json:"fields"`
	Children []string                   `json:"children"`
}

// Summary lists node counts and tombstones
func (gh *GraphHandler) Summary(w http.ResponseWriter, r *http.Request) {
	g := gh.hub.Graph()
	snapshot := g.Snapshot()

	roots := make(map[string]struct{})
	for key := range snapshot {
		roots[graph.ParsePath(key)[0]] = struct{}{}
	}
	rootList := make([]string, 0, len(roots))
	for k := range roots {
		rootList = append(rootList, k)
	}
	sort.Strings(rootList)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"nodes":      len(snapshot),
		"roots":      rootList,
		"tombstones": g.Tombstones(),
	})
}

// GetNode returns one node with its fields and child keys
func (gh *GraphHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	path := graph.ParsePath(mux.Vars(r)["path"])
	if err := path.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	g := gh.hub.Graph()
	fields := g.Node(path)
	children := g.Children(path)
	if fields == nil && len(children) == 0 {
		respondError(w, http.StatusNotFound, "node not found")
		return
	}

	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := graph.Values(fields)
	if values == nil {
		values = map[string]json.RawMessage{}
	}
	respondJSON(w, http.StatusOK, NodeView{
		Path:     path.String(),
		Fields:   values,
		Children: keys,
	})
}
