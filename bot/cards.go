// Package bot is the Telegram front end: the customer ordering bot and the staff console.
package bot

import (
	"fmt"
	"strings"
	"sync"

	"scan-order/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type cardRef struct {
	chatID    int64
	messageID int
}

// cardBoard remembers which message shows each order card in each chat, so later status
// changes edit that message instead of posting a new one.
type cardBoard struct {
	api *tgbotapi.BotAPI
	log *zap.Logger

	mu    sync.Mutex
	refs  map[string]cardRef
	locks sync.Map // card key -> *sync.Mutex
}

func newCardBoard(api *tgbotapi.BotAPI, log *zap.Logger) *cardBoard {
	return &cardBoard{api: api, log: log, refs: make(map[string]cardRef)}
}

func cardKey(orderID string, chatID int64) string {
	return fmt.Sprintf("%s:%d", orderID, chatID)
}

// cardMarkup converts OrderCardContent.Buttons to a Telegram inline keyboard.
func cardMarkup(c services.OrderCardContent) *tgbotapi.InlineKeyboardMarkup {
	if len(c.Buttons) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range c.Buttons {
		var btns []tgbotapi.InlineKeyboardButton
		for _, btn := range row {
			if btn.URL != "" {
				btns = append(btns, tgbotapi.NewInlineKeyboardButtonURL(btn.Text, btn.URL))
			} else {
				btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.CallbackData))
			}
		}
		rows = append(rows, btns)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func (c *cardBoard) lock(key string) func() {
	v, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// upsert edits the order's card in chatID, or sends a new one when there is none yet or the old
// message is gone. "message is not modified" is ignored.
func (c *cardBoard) upsert(chatID int64, orderID string, content services.OrderCardContent) {
	key := cardKey(orderID, chatID)
	unlock := c.lock(key)
	defer unlock()

	c.mu.Lock()
	ref, ok := c.refs[key]
	c.mu.Unlock()

	if ok {
		edit := tgbotapi.NewEditMessageText(ref.chatID, ref.messageID, content.Text)
		if kb := cardMarkup(content); kb != nil {
			edit.ReplyMarkup = kb
		} else {
			edit.ReplyMarkup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
		}
		_, err := c.api.Send(edit)
		if err == nil {
			return
		}
		errStr := err.Error()
		if strings.Contains(errStr, "not modified") {
			return
		}
		if !strings.Contains(errStr, "not found") {
			c.log.Warn("edit order card failed", zap.String("order_id", orderID), zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
	}

	msg := tgbotapi.NewMessage(chatID, content.Text)
	if kb := cardMarkup(content); kb != nil {
		msg.ReplyMarkup = *kb
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		c.log.Warn("send order card failed", zap.String("order_id", orderID), zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	c.mu.Lock()
	c.refs[key] = cardRef{chatID: chatID, messageID: sent.MessageID}
	c.mu.Unlock()
}
