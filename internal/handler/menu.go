package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tableside/api/internal/database"
)

// MenuStore defines the catalog reads needed by the guest menu.
// Satisfied by *database.Queries.
type MenuStore interface {
	ListAvailableMenuItems(ctx context.Context) ([]database.MenuItem, error)
	ListMenuModifierOptions(ctx context.Context) ([]database.ListMenuModifierOptionsRow, error)
}

// MenuHandler serves the read-only guest menu.
type MenuHandler struct {
	store MenuStore
	log   *zap.Logger
}

func NewMenuHandler(store MenuStore, log *zap.Logger) *MenuHandler {
	return &MenuHandler{store: store, log: log}
}

func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/menu", h.List)
}

// --- Response types ---

type menuItemResponse struct {
	ID             uuid.UUID               `json:"id"`
	Name           string                  `json:"name"`
	Description    *string                 `json:"description"`
	Price          string                  `json:"price"`
	ModifierGroups []modifierGroupResponse `json:"modifier_groups"`
}

type modifierGroupResponse struct {
	ID      uuid.UUID                `json:"id"`
	Name    string                   `json:"name"`
	Options []modifierOptionResponse `json:"options"`
}

type modifierOptionResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PriceDelta string    `json:"price_delta"`
}

// List handles GET /menu.
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListAvailableMenuItems(r.Context())
	if err != nil {
		h.log.Error("list menu items", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	options, err := h.store.ListMenuModifierOptions(r.Context())
	if err != nil {
		h.log.Error("list modifier options", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, buildMenu(items, options))
}

// buildMenu nests options under their groups and groups under their item,
// keeping the query order at every level.
func buildMenu(items []database.MenuItem, options []database.ListMenuModifierOptionsRow) []menuItemResponse {
	resp := make([]menuItemResponse, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for i, item := range items {
		resp[i] = menuItemResponse{
			ID:             item.ID,
			Name:           item.Name,
			Price:          numericToString(item.Price),
			ModifierGroups: []modifierGroupResponse{},
		}
		if item.Description.Valid {
			resp[i].Description = &item.Description.String
		}
		index[item.ID] = i
	}

	for _, o := range options {
		i, ok := index[o.MenuItemID]
		if !ok {
			continue
		}
		groups := resp[i].ModifierGroups
		if n := len(groups); n == 0 || groups[n-1].ID != o.GroupID {
			groups = append(groups, modifierGroupResponse{ID: o.GroupID, Name: o.GroupName})
		}
		last := &groups[len(groups)-1]
		last.Options = append(last.Options, modifierOptionResponse{
			ID:         o.OptionID,
			Name:       o.OptionName,
			PriceDelta: numericToString(o.PriceDelta),
		})
		resp[i].ModifierGroups = groups
	}
	return resp
}
