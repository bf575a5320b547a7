package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"scan-order/catalog"
	"scan-order/models"
	"scan-order/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const openOrdersLimit = 20

// StaffBot is the store console: staff log in to one store, receive its order cards and move
// orders through fulfillment.
type StaffBot struct {
	api     *tgbotapi.BotAPI
	engine  *services.Engine
	catalog catalog.Catalog
	auth    *services.StaffAuth
	cards   *cardBoard
	log     *zap.Logger

	mu       sync.RWMutex
	stations map[int64]string // chat id -> store id
}

func NewStaffBot(token string, engine *services.Engine, cat catalog.Catalog, auth *services.StaffAuth, log *zap.Logger) (*StaffBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log = log.Named("staff")
	s := &StaffBot{
		api:      api,
		engine:   engine,
		catalog:  cat,
		auth:     auth,
		cards:    newCardBoard(api, log),
		log:      log,
		stations: make(map[int64]string),
	}
	engine.OnStatusChange(s.onStatusChange)
	return s, nil
}

func (s *StaffBot) Start(ctx context.Context) {
	_, err := s.api.Request(tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "staff", Description: "Log in: /staff <store id> <password>"},
		tgbotapi.BotCommand{Command: "open", Description: "Open orders"},
		tgbotapi.BotCommand{Command: "stats", Description: "Today's stats, or /stats YYYY-MM-DD"},
		tgbotapi.BotCommand{Command: "logout", Description: "Stop receiving orders"},
	))
	if err != nil {
		s.log.Warn("set bot commands failed", zap.Error(err))
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.api.GetUpdatesChan(u)
	s.log.Info("staff console started", zap.String("username", s.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			s.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go s.handleUpdate(ctx, update)
		}
	}
}

func (s *StaffBot) send(chatID int64, text string) {
	if _, err := s.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		s.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (s *StaffBot) station(chatID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.stations[chatID]
	return id, ok
}

func (s *StaffBot) chatsFor(storeID string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for chatID, id := range s.stations {
		if id == storeID {
			out = append(out, chatID)
		}
	}
	return out
}

func (s *StaffBot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("update handler panicked", zap.Any("panic", r), zap.Int("update_id", update.UpdateID))
		}
	}()
	if cq := update.CallbackQuery; cq != nil {
		if strings.HasPrefix(cq.Data, services.CallbackOrderStatus+":") {
			s.handleOrderStatusCallback(ctx, cq)
		}
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	switch msg.Command() {
	case "staff":
		s.handleLogin(ctx, msg)
	case "logout":
		s.mu.Lock()
		delete(s.stations, msg.Chat.ID)
		s.mu.Unlock()
		s.send(msg.Chat.ID, "Logged out.")
	case "open":
		s.handleOpen(ctx, msg.Chat.ID)
	case "stats":
		s.handleStats(ctx, msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()))
	}
}

// handleLogin expects "/staff <store id> <password>". The message carrying the password is deleted.
func (s *StaffBot) handleLogin(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	if _, err := s.api.Request(tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); err != nil {
		s.log.Debug("delete login message failed", zap.Error(err))
	}
	parts := strings.Fields(msg.CommandArguments())
	if len(parts) != 2 {
		s.send(chatID, "Usage: /staff <store id> <password>")
		return
	}
	storeID, password := parts[0], parts[1]

	ok, wait, err := s.auth.Login(userID, password)
	switch {
	case errors.Is(err, services.ErrStaffLoginDisabled):
		s.send(chatID, "Staff login is not configured.")
		return
	case err != nil:
		s.log.Error("staff login failed", zap.Int64("user_id", userID), zap.Error(err))
		s.send(chatID, "Login failed, please try again.")
		return
	case !ok:
		s.log.Info("staff login rejected", zap.Int64("user_id", userID), zap.Int("wait_seconds", wait))
		s.send(chatID, fmt.Sprintf("❌ Wrong password. Try again in %d seconds.", wait))
		return
	}

	m, err := s.catalog.Merchant(ctx, storeID)
	if catalog.IsNotFound(err) {
		s.send(chatID, fmt.Sprintf("Unknown store %q.", storeID))
		return
	}
	if err != nil {
		s.log.Error("load merchant failed", zap.String("store_id", storeID), zap.Error(err))
		s.send(chatID, "Could not load the store, please try again.")
		return
	}
	s.mu.Lock()
	s.stations[chatID] = m.ID
	s.mu.Unlock()
	s.log.Info("staff logged in", zap.Int64("user_id", userID), zap.String("store_id", m.ID))
	s.send(chatID, fmt.Sprintf("✅ Logged in to %s. New orders will appear here.", m.Name))
	s.handleOpen(ctx, chatID)
}

func (s *StaffBot) handleOpen(ctx context.Context, chatID int64) {
	storeID, ok := s.station(chatID)
	if !ok {
		s.send(chatID, "Log in first: /staff <store id> <password>")
		return
	}
	orders, err := s.engine.ListOpen(ctx, storeID, openOrdersLimit)
	if err != nil {
		s.log.Error("list open orders failed", zap.String("store_id", storeID), zap.Error(err))
		s.send(chatID, "Could not load open orders.")
		return
	}
	if len(orders) == 0 {
		s.send(chatID, "No open orders.")
		return
	}
	for i := len(orders) - 1; i >= 0; i-- {
		s.cards.upsert(chatID, orders[i].ID, services.BuildStaffCard(orders[i]))
	}
}

func (s *StaffBot) handleStats(ctx context.Context, chatID int64, arg string) {
	storeID, ok := s.station(chatID)
	if !ok {
		s.send(chatID, "Log in first: /staff <store id> <password>")
		return
	}
	day := time.Now().UTC()
	if arg != "" {
		d, err := time.Parse("2006-01-02", arg)
		if err != nil {
			s.send(chatID, "Usage: /stats [YYYY-MM-DD]")
			return
		}
		day = d
	}
	stats, err := s.engine.DailyStats(ctx, storeID, day)
	if err != nil {
		s.send(chatID, "Stats failed: "+err.Error())
		return
	}
	s.send(chatID, fmt.Sprintf(
		"📊 Stats (%s)\n\nOrders: %d\nPaid: %d\nCancelled: %d\nRevenue: %s",
		day.Format("2006-01-02"), stats.OrdersCount, stats.PaidCount, stats.CancelledCount, services.FormatMoney(stats.Revenue),
	))
}

func (s *StaffBot) handleOrderStatusCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	answer := func(text string) { s.api.Request(tgbotapi.NewCallback(cq.ID, text)) }
	if cq.Message == nil {
		answer("")
		return
	}
	_, args := services.ParseCallback(cq.Data)
	if len(args) != 2 {
		answer("Invalid callback.")
		return
	}
	orderID, to := args[0], models.OrderStatus(args[1])

	storeID, ok := s.station(cq.Message.Chat.ID)
	if !ok {
		answer("Log in first.")
		return
	}
	o, err := s.engine.Get(ctx, orderID)
	if err != nil || o.StoreID != storeID {
		answer("Order not found.")
		return
	}
	note := fmt.Sprintf("staff %d", cq.From.ID)
	if _, err := s.engine.Advance(ctx, orderID, to, note); err != nil {
		if errors.Is(err, services.ErrInvalidTransition) {
			answer("Already changed by someone else.")
		} else {
			s.log.Error("order status update failed", zap.String("order_id", orderID), zap.String("status", string(to)), zap.Error(err))
			answer("Update failed, please try again.")
		}
		if cur, err := s.engine.Get(ctx, orderID); err == nil {
			s.cards.upsert(cq.Message.Chat.ID, orderID, services.BuildStaffCard(cur))
		}
		return
	}
	answer("✅ " + services.StatusLabel(to))
}

// onStatusChange pushes the order's card to every console logged in to its store.
func (s *StaffBot) onStatusChange(_ context.Context, o *models.Order, _ models.OrderStatus) {
	chats := s.chatsFor(o.StoreID)
	if len(chats) == 0 {
		return
	}
	go func() {
		// Render the latest state; listener calls for one order can arrive out of order.
		cur, err := s.engine.Get(context.Background(), o.ID)
		if err != nil {
			cur = o
		}
		content := services.BuildStaffCard(cur)
		for _, chatID := range chats {
			s.cards.upsert(chatID, o.ID, content)
		}
	}()
}
