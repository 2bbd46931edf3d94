package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"breakout-backend/internal/domain"
	"breakout-backend/internal/usecase"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// snapshot is what each connected client receives.
type snapshot struct {
	Time           time.Time          `json:"time"`
	OpenPositions  []*domain.Position `json:"openPositions"`
	ClosedToday    int                `json:"closedToday"`
	LossStreak     int                `json:"lossStreak"`
	CooldownUntil  *time.Time         `json:"cooldownUntil,omitempty"`
	PaperTrading   bool               `json:"paperTrading"`
	ActiveStrategy string             `json:"activeStrategy"`
}

type Handler struct {
	cfg    *domain.Config
	repo   domain.TradeRepository
	streak *usecase.LossStreak
}

func NewHandler(cfg *domain.Config, repo domain.TradeRepository, streak *usecase.LossStreak) *Handler {
	return &Handler{
		cfg:    cfg,
		repo:   repo,
		streak: streak,
	}
}

func (h *Handler) build() snapshot {
	now := time.Now().UTC()
	losses, until := h.streak.Stats()

	closedToday := 0
	for _, p := range h.repo.Closed() {
		if p.ExitTime.Year() == now.Year() && p.ExitTime.YearDay() == now.YearDay() {
			closedToday++
		}
	}

	s := snapshot{
		Time:           now,
		OpenPositions:  h.repo.Open(),
		ClosedToday:    closedToday,
		LossStreak:     losses,
		PaperTrading:   h.cfg.PaperTrading,
		ActiveStrategy: string(h.cfg.Strategy),
	}
	if !until.IsZero() {
		s.CooldownUntil = &until
	}
	return s
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	log.Println("New Client Connected")

	// Send initial data immediately
	if err := conn.WriteJSON(h.build()); err != nil {
		log.Println("Write error:", err)
		return
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(h.build()); err != nil {
			log.Println("Write error:", err)
			return
		}
	}
}
