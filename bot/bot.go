package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"scan-order/models"
	"scan-order/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	cbMenu          = "menu"
	cbCart          = "cart"
	cbAdd           = "add"
	cbInc           = "inc"
	cbDec           = "dec"
	cbRemove        = "rm"
	cbClear         = "clear"
	cbCheckout      = "checkout"
	cbSwitchKeep    = "switch:keep"
	cbSwitchDiscard = "switch:discard"

	recentOrdersLimit = 5
)

var errSwitchUnanswered = errors.New("store switch prompt not answered")

// Bot is the customer-facing ordering bot. Each Telegram user has one session.
type Bot struct {
	api      *tgbotapi.BotAPI
	sessions *services.SessionManager
	cards    *cardBoard
	log      *zap.Logger

	switchTimeout time.Duration
	switchMu      sync.Mutex
	switchReplies map[int64]chan bool // chat id -> pending discard decision
}

func New(token string, sessions *services.SessionManager, switchTimeout time.Duration, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log = log.Named("bot")
	return &Bot{
		api:           api,
		sessions:      sessions,
		cards:         newCardBoard(api, log),
		log:           log,
		switchTimeout: switchTimeout,
		switchReplies: make(map[int64]chan bool),
	}, nil
}

func sessionID(userID int64) string {
	return "tg:" + strconv.FormatInt(userID, 10)
}

func (b *Bot) session(ctx context.Context, userID int64) *services.Session {
	return b.sessions.Get(ctx, sessionID(userID))
}

func (b *Bot) setBotCommands() error {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Start or scan a table code"},
		tgbotapi.BotCommand{Command: "menu", Description: "Show the menu"},
		tgbotapi.BotCommand{Command: "cart", Description: "Show your cart"},
		tgbotapi.BotCommand{Command: "orders", Description: "My orders"},
		tgbotapi.BotCommand{Command: "scan", Description: "Enter a table or store code"},
	)
	_, err := b.api.Request(cfg)
	return err
}

// Start handles updates until ctx is cancelled. Each update runs in its own goroutine so that a
// pending store-switch prompt never blocks the answer to it.
func (b *Bot) Start(ctx context.Context) {
	if err := b.setBotCommands(); err != nil {
		b.log.Warn("set bot commands failed", zap.Error(err))
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.log.Info("customer bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panicked", zap.Any("panic", r), zap.Int("update_id", update.UpdateID))
		}
	}()
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID, userID := msg.Chat.ID, msg.From.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, chatID, userID, args)
	case "scan":
		if args == "" {
			b.send(chatID, "Send the code printed on your table or at the counter, e.g. /scan TABLE-A12")
			return
		}
		b.handleScan(ctx, chatID, userID, args)
	case "menu":
		b.sendMenu(ctx, chatID, userID)
	case "cart":
		b.sendCart(ctx, chatID, userID, 0)
	case "orders":
		b.handleOrders(ctx, chatID, userID)
	case "":
		// A bare code typed instead of scanned.
		if text := strings.TrimSpace(msg.Text); text != "" && !strings.ContainsAny(text, " \n") {
			b.handleScan(ctx, chatID, userID, text)
		}
	}
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) sendWithInline(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// sendOrEdit edits messageID when it is set, otherwise sends a new message.
func (b *Bot) sendOrEdit(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) {
	if messageID == 0 {
		b.sendWithInline(chatID, text, kb)
		return
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, kb)
	if _, err := b.api.Send(edit); err != nil && !strings.Contains(err.Error(), "not modified") {
		b.log.Warn("edit failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) answer(cq *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, text)); err != nil {
		b.log.Debug("answer callback failed", zap.Error(err))
	}
}

func navKeyboard(cartCount int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Menu", cbMenu),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🛒 Cart (%d)", cartCount), cbCart),
		),
	)
}

func (b *Bot) handleStart(ctx context.Context, chatID, userID int64, sceneCode string) {
	if sceneCode != "" {
		b.handleScan(ctx, chatID, userID, sceneCode)
		return
	}
	sess := b.session(ctx, userID)
	active, ok := sess.Cart().Active()
	if !ok {
		b.send(chatID, "👋 Welcome! Scan the QR code on your table, or send the code printed next to it.")
		return
	}
	b.sendWithInline(chatID, "👋 Welcome back!\n\n"+storeHeader(active), navKeyboard(sess.Cart().Count()))
}

func storeHeader(sc models.StoreContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏪 %s", sc.Name)
	if sc.Address != "" {
		fmt.Fprintf(&sb, "\n📍 %s", sc.Address)
	}
	if sc.DefaultOrderType == models.OrderTypeDineIn {
		fmt.Fprintf(&sb, "\n🍽 Dine in, table %s", sc.TableNumber)
	} else {
		sb.WriteString("\n🥡 Pick up at the counter")
	}
	if !sc.AllowOrder {
		sb.WriteString("\n\n⏸ Ordering is paused at this store right now.")
	} else if !sc.AllowPay {
		sb.WriteString("\n\n💵 Online payment is off here; pay at the counter.")
	}
	return sb.String()
}

func (b *Bot) handleScan(ctx context.Context, chatID, userID int64, sceneCode string) {
	sess := b.session(ctx, userID)
	sess.StopTracking()

	sc, res, err := sess.Scan(ctx, sceneCode, b.switchConfirmer(chatID))
	if errors.Is(err, services.ErrResolution) {
		b.send(chatID, "❓ That code was not recognised. Check the code on your table and try again.")
		return
	}
	if err != nil {
		b.log.Error("scan failed", zap.Int64("user_id", userID), zap.String("scene", sceneCode), zap.Error(err))
		b.send(chatID, "Something went wrong, please try again.")
		return
	}

	var sb strings.Builder
	sb.WriteString(storeHeader(sc))
	if res.Previous != nil && !res.SameStore {
		switch {
		case res.Discarded:
			fmt.Fprintf(&sb, "\n\n🗑 Your cart at %s was cleared.", res.Previous.Name)
		case res.Parked:
			fmt.Fprintf(&sb, "\n\n💾 Your cart at %s is kept for when you come back.", res.Previous.Name)
		}
	}
	if res.Restored > 0 {
		fmt.Fprintf(&sb, "\n\n🛒 Your saved cart here has %d item(s).", sess.Cart().Count())
	}
	b.sendWithInline(chatID, sb.String(), navKeyboard(sess.Cart().Count()))
}

// switchConfirmer asks in chat whether to discard the cart being left. The scan waits for the answer
// in its own goroutine; no answer within switchTimeout keeps the cart.
func (b *Bot) switchConfirmer(chatID int64) services.Confirmer {
	return services.ConfirmFunc(func(ctx context.Context, leaving models.StoreContext, items []models.CartItem) (bool, error) {
		reply := make(chan bool, 1)
		b.switchMu.Lock()
		if prev, ok := b.switchReplies[chatID]; ok {
			select {
			case prev <- false:
			default:
			}
		}
		b.switchReplies[chatID] = reply
		b.switchMu.Unlock()
		defer func() {
			b.switchMu.Lock()
			if b.switchReplies[chatID] == reply {
				delete(b.switchReplies, chatID)
			}
			b.switchMu.Unlock()
		}()

		text := fmt.Sprintf("You have %d item(s) (%s) in your cart at %s.\nDiscard them, or keep them for later?",
			len(items), services.FormatMoney(models.CartTotal(items)), leaving.Name)
		kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💾 Keep", cbSwitchKeep),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Discard", cbSwitchDiscard),
		))
		b.sendWithInline(chatID, text, kb)

		timer := time.NewTimer(b.switchTimeout)
		defer timer.Stop()
		select {
		case discard := <-reply:
			return discard, nil
		case <-timer.C:
			return false, errSwitchUnanswered
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})
}

func (b *Bot) resolveSwitch(cq *tgbotapi.CallbackQuery, discard bool) {
	chatID := cq.Message.Chat.ID
	b.switchMu.Lock()
	reply, ok := b.switchReplies[chatID]
	if ok {
		delete(b.switchReplies, chatID)
	}
	b.switchMu.Unlock()
	if !ok {
		b.answer(cq, "This question has expired.")
		return
	}
	reply <- discard
	b.answer(cq, "")
	b.api.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, cq.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}))
}

func (b *Bot) menuKeyboard(products []models.Product, cartCount int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range products {
		if len(p.Specs) == 0 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("➕ "+p.Name, cbAdd+":"+p.ID),
			))
			continue
		}
		var row []tgbotapi.InlineKeyboardButton
		for _, spec := range p.Specs {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("➕ %s (%s)", p.Name, spec), cbAdd+":"+p.ID+":"+spec))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🛒 Cart (%d)", cartCount), cbCart),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func menuText(store models.StoreContext, products []models.Product) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 %s\n", store.Name)
	category := ""
	for _, p := range products {
		if p.Category != "" && p.Category != category {
			category = p.Category
			fmt.Fprintf(&sb, "\n%s\n", strings.ToUpper(category))
		}
		fmt.Fprintf(&sb, "• %s — %s", p.Name, services.FormatMoney(p.Price))
		if p.VIPPrice != nil {
			fmt.Fprintf(&sb, " (VIP %s)", services.FormatMoney(*p.VIPPrice))
		}
		sb.WriteString("\n")
		if p.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", p.Description)
		}
	}
	return sb.String()
}

func (b *Bot) sendMenu(ctx context.Context, chatID, userID int64) {
	sess := b.session(ctx, userID)
	sess.StopTracking()
	active, ok := sess.Cart().Active()
	if !ok {
		b.send(chatID, "Scan a table or store code first.")
		return
	}
	products, err := sess.Menu(ctx)
	if err != nil {
		b.log.Error("load menu failed", zap.String("store_id", active.ID), zap.Error(err))
		b.send(chatID, "The menu could not be loaded, please try again.")
		return
	}
	if len(products) == 0 {
		b.send(chatID, "This store has nothing on the menu right now.")
		return
	}
	b.sendWithInline(chatID, menuText(active, products), b.menuKeyboard(products, sess.Cart().Count()))
}

func (b *Bot) addToCart(ctx context.Context, cq *tgbotapi.CallbackQuery, productID, spec string) {
	userID := cq.From.ID
	sess := b.session(ctx, userID)
	item, err := sess.AddProduct(ctx, productID, spec, 1)
	switch {
	case errors.Is(err, services.ErrNoActiveStore):
		b.answer(cq, "Scan a table or store code first.")
		return
	case errors.Is(err, services.ErrOrderingNotAllowed):
		b.answer(cq, "Ordering is paused at this store.")
		return
	case err != nil:
		b.log.Warn("add to cart failed", zap.Int64("user_id", userID), zap.String("product_id", productID), zap.Error(err))
		b.answer(cq, "That item is not available.")
		return
	}
	b.answer(cq, fmt.Sprintf("Added %s · cart %s", item.Name, services.FormatMoney(sess.Cart().Total())))

	products, err := sess.Menu(ctx)
	if err == nil {
		kb := b.menuKeyboard(products, sess.Cart().Count())
		b.api.Request(tgbotapi.NewEditMessageReplyMarkup(cq.Message.Chat.ID, cq.Message.MessageID, kb))
	}
}

func cartKeyboard(store models.StoreContext, items []models.CartItem) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, it := range items {
		label := it.Name
		if it.Spec != "" {
			label += " (" + it.Spec + ")"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➖", cbDec+":"+it.ID),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s × %d", label, it.Quantity), "noop"),
			tgbotapi.NewInlineKeyboardButtonData("➕", cbInc+":"+it.ID),
			tgbotapi.NewInlineKeyboardButtonData("🗑", cbRemove+":"+it.ID),
		))
	}
	nav := tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Menu", cbMenu))
	if len(items) > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("🧹 Clear", cbClear))
	}
	rows = append(rows, nav)
	if len(items) > 0 && store.AllowOrder {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			"✅ Checkout "+services.FormatMoney(models.CartTotal(items)), cbCheckout)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// sendCart shows the cart, editing messageID in place when it is set.
func (b *Bot) sendCart(ctx context.Context, chatID, userID int64, messageID int) {
	sess := b.session(ctx, userID)
	sess.StopTracking()
	active, ok := sess.Cart().Active()
	if !ok {
		b.send(chatID, "Scan a table or store code first.")
		return
	}
	items := sess.Cart().Items()
	text := services.CartSummary(active, items)
	if err := sess.Cart().LastPersistError(); err != nil {
		text += "\n\n⚠️ Your cart could not be saved right now; it is kept only until the bot restarts."
	}
	b.sendOrEdit(chatID, messageID, text, cartKeyboard(active, items))
}

func (b *Bot) changeQuantity(ctx context.Context, cq *tgbotapi.CallbackQuery, itemID string, delta int) {
	sess := b.session(ctx, cq.From.ID)
	if _, err := sess.Cart().UpdateQuantity(ctx, itemID, delta); err != nil {
		b.answer(cq, "That line is no longer in your cart.")
	} else {
		b.answer(cq, "")
	}
	b.sendCart(ctx, cq.Message.Chat.ID, cq.From.ID, cq.Message.MessageID)
}

func (b *Bot) handleCheckout(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	chatID, userID := cq.Message.Chat.ID, cq.From.ID
	sess := b.session(ctx, userID)
	res, err := sess.Checkout(ctx)
	switch {
	case errors.Is(err, services.ErrEmptyCart):
		b.answer(cq, "Your cart is empty.")
		return
	case errors.Is(err, services.ErrNoActiveStore):
		b.answer(cq, "Scan a table or store code first.")
		return
	case errors.Is(err, services.ErrOrderingNotAllowed):
		b.answer(cq, "Ordering is paused at this store.")
		return
	case err != nil:
		b.log.Error("checkout failed", zap.Int64("user_id", userID), zap.Error(err))
		b.answer(cq, "Could not place the order, please try again.")
		return
	}
	b.answer(cq, "Order placed")
	b.api.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, cq.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}))

	o := res.Order
	b.cards.upsert(chatID, o.ID, services.BuildCustomerCard(o))
	switch {
	case res.Paid:
		b.send(chatID, fmt.Sprintf("✅ Payment received. Your take number is %s; this card updates as your order progresses.", o.TakeNumber))
	case res.PaymentTried:
		b.log.Info("checkout payment failed", zap.String("order_id", o.ID), zap.Error(res.PaymentErr))
		b.send(chatID, "❌ Payment did not go through. Your order is saved; tap Pay on the card to try again.")
	default:
		b.send(chatID, fmt.Sprintf("🧾 Order %s placed. Please pay at the counter.", o.TakeNumber))
	}
	b.track(ctx, sess, chatID, o.ID)
}

// track follows an order and keeps its card current until it finishes or the user navigates away.
func (b *Bot) track(ctx context.Context, sess *services.Session, chatID int64, orderID string) {
	refresh := func() *models.Order {
		o, err := sess.Order(ctx, orderID)
		if err != nil {
			b.log.Warn("load tracked order failed", zap.String("order_id", orderID), zap.Error(err))
			return nil
		}
		b.cards.upsert(chatID, orderID, services.BuildCustomerCard(o))
		return o
	}
	err := sess.Track(ctx, orderID,
		func(status models.OrderStatus) {
			o := refresh()
			if o != nil && status == models.OrderStatusReady {
				b.send(chatID, fmt.Sprintf("🔔 Order %s is ready!", o.TakeNumber))
			}
		},
		func(res services.PollResult) {
			b.log.Debug("tracking finished", zap.String("order_id", orderID),
				zap.Stringer("outcome", res.Outcome), zap.Int("attempts", res.Attempts))
			if res.Outcome == services.PollExhausted {
				refresh()
			}
		})
	if err != nil {
		b.log.Warn("start tracking failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (b *Bot) handlePay(ctx context.Context, cq *tgbotapi.CallbackQuery, orderID string) {
	chatID := cq.Message.Chat.ID
	sess := b.session(ctx, cq.From.ID)
	paid, err := sess.Pay(ctx, orderID)
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		b.answer(cq, "Order not found.")
		return
	case errors.Is(err, services.ErrInvalidTransition):
		b.answer(cq, "This order can no longer be paid.")
	case errors.Is(err, services.ErrPaymentDeclined):
		b.answer(cq, "Payment did not go through, please try again.")
	case err != nil:
		b.log.Error("pay failed", zap.String("order_id", orderID), zap.Error(err))
		b.answer(cq, "Could not reach the payment service.")
	case paid:
		b.answer(cq, "✅ Paid")
	}
	if o, err := sess.Order(ctx, orderID); err == nil {
		b.cards.upsert(chatID, orderID, services.BuildCustomerCard(o))
	}
	if paid {
		b.track(ctx, sess, chatID, orderID)
	}
}

func (b *Bot) handleCancel(ctx context.Context, cq *tgbotapi.CallbackQuery, orderID string) {
	sess := b.session(ctx, cq.From.ID)
	o, err := sess.Cancel(ctx, orderID)
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		b.answer(cq, "Order not found.")
		return
	case errors.Is(err, services.ErrInvalidTransition):
		b.answer(cq, "This order can no longer be cancelled.")
		o, err = sess.Order(ctx, orderID)
		if err != nil {
			return
		}
	case err != nil:
		b.log.Error("cancel failed", zap.String("order_id", orderID), zap.Error(err))
		b.answer(cq, "Could not cancel, please try again.")
		return
	default:
		b.answer(cq, "Order cancelled")
		sess.StopTracking()
	}
	b.cards.upsert(cq.Message.Chat.ID, orderID, services.BuildCustomerCard(o))
}

func (b *Bot) handleTrack(ctx context.Context, cq *tgbotapi.CallbackQuery, orderID string) {
	chatID := cq.Message.Chat.ID
	sess := b.session(ctx, cq.From.ID)
	o, err := sess.Order(ctx, orderID)
	if err != nil {
		b.answer(cq, "Order not found.")
		return
	}
	b.answer(cq, services.StatusLabel(o.Status))
	b.cards.upsert(chatID, orderID, services.BuildCustomerCard(o))
	if !o.Status.IsTerminal() {
		b.track(ctx, sess, chatID, orderID)
	}
}

func (b *Bot) handleOrders(ctx context.Context, chatID, userID int64) {
	sess := b.session(ctx, userID)
	orders, err := sess.Orders(ctx, recentOrdersLimit)
	if err != nil {
		b.log.Error("list orders failed", zap.Int64("user_id", userID), zap.Error(err))
		b.send(chatID, "Could not load your orders.")
		return
	}
	if len(orders) == 0 {
		b.send(chatID, "You have no orders yet.")
		return
	}
	var sb strings.Builder
	sb.WriteString("🧾 Your recent orders\n\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, o := range orders {
		fmt.Fprintf(&sb, "%s · %s · %s · %s\n", o.TakeNumber, o.StoreName, services.FormatMoney(o.TotalAmount), services.StatusLabel(o.Status))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔎 "+o.TakeNumber+" · "+o.StoreName, services.CallbackTrack+":"+o.ID),
		))
	}
	b.sendWithInline(chatID, sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.From == nil {
		return
	}
	chatID, userID := cq.Message.Chat.ID, cq.From.ID
	prefix, args := services.ParseCallback(cq.Data)
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch {
	case cq.Data == cbSwitchKeep:
		b.resolveSwitch(cq, false)
	case cq.Data == cbSwitchDiscard:
		b.resolveSwitch(cq, true)
	case prefix == cbMenu:
		b.answer(cq, "")
		b.sendMenu(ctx, chatID, userID)
	case prefix == cbCart:
		b.answer(cq, "")
		b.sendCart(ctx, chatID, userID, 0)
	case prefix == cbAdd:
		b.addToCart(ctx, cq, arg(0), arg(1))
	case prefix == cbInc:
		b.changeQuantity(ctx, cq, arg(0), 1)
	case prefix == cbDec:
		b.changeQuantity(ctx, cq, arg(0), -1)
	case prefix == cbRemove:
		if err := b.session(ctx, userID).Cart().RemoveItem(ctx, arg(0)); err != nil {
			b.answer(cq, "That line is no longer in your cart.")
		} else {
			b.answer(cq, "Removed")
		}
		b.sendCart(ctx, chatID, userID, cq.Message.MessageID)
	case prefix == cbClear:
		b.session(ctx, userID).Cart().Clear(ctx)
		b.answer(cq, "Cart cleared")
		b.sendCart(ctx, chatID, userID, cq.Message.MessageID)
	case prefix == cbCheckout:
		b.handleCheckout(ctx, cq)
	case prefix == services.CallbackPay:
		b.handlePay(ctx, cq, arg(0))
	case prefix == services.CallbackCancel:
		b.handleCancel(ctx, cq, arg(0))
	case prefix == services.CallbackTrack:
		b.handleTrack(ctx, cq, arg(0))
	default:
		b.answer(cq, "")
	}
}
