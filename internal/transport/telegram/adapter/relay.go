package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	tele "gopkg.in/telebot.v4"

	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type wireDocument struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MIME     string `json:"mime_type"`
	Size     int64  `json:"file_size"`
}

// wireMessage is the subset of a Bot API Message the relay reads.
type wireMessage struct {
	MessageID int    `json:"message_id"`
	ThreadID  int    `json:"message_thread_id"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`

	Document  *wireDocument   `json:"document"`
	Photo     json.RawMessage `json:"photo"`
	Video     json.RawMessage `json:"video"`
	Audio     json.RawMessage `json:"audio"`
	Voice     json.RawMessage `json:"voice"`
	Animation json.RawMessage `json:"animation"`
	VideoNote json.RawMessage `json:"video_note"`
	Sticker   json.RawMessage `json:"sticker"`
}

func (m wireMessage) hasMedia() bool {
	if m.Document != nil {
		return true
	}
	for _, raw := range []json.RawMessage{m.Photo, m.Video, m.Audio, m.Voice, m.Animation, m.VideoNote, m.Sticker} {
		if len(raw) > 0 && string(raw) != "null" {
			return true
		}
	}
	return false
}

// toSource converts a forwarded copy back into a description of the
// source message id.
func (m wireMessage) toSource(chatID int64, id int) kit.SourceMessage {
	out := kit.SourceMessage{ID: id, ChatID: chatID, Text: m.Text, HasMedia: m.hasMedia()}
	if out.HasMedia {
		out.Text = m.Caption
	}
	if d := m.Document; d != nil {
		out.Document = &kit.Document{FileID: d.FileID, FileName: d.FileName, MIME: d.MIME, Size: d.Size}
	}
	return out
}

type messageIDResult struct {
	MessageID int `json:"message_id"`
}

type forwardParams struct {
	ChatID              int64 `json:"chat_id"`
	ThreadID            int   `json:"message_thread_id,omitempty"`
	FromChatID          int64 `json:"from_chat_id"`
	MessageID           int   `json:"message_id"`
	DisableNotification bool  `json:"disable_notification,omitempty"`
}

type copyParams struct {
	ChatID     int64   `json:"chat_id"`
	ThreadID   int     `json:"message_thread_id,omitempty"`
	FromChatID int64   `json:"from_chat_id"`
	MessageID  int     `json:"message_id"`
	Caption    *string `json:"caption,omitempty"`
}

// FetchMessage reads message id of from. The Bot API has no
// get-by-id call, so the message is forwarded silently to the scratch chat,
// decoded and the forwarded copy deleted again.
//
// Without a scratch chat only the id is known; a missing message then
// surfaces as not-found on copy.
func (a *Adapter) FetchMessage(ctx context.Context, from kit.ChatTarget, id int) (kit.SourceMessage, error) {
	if a.cfg.ScratchChatID == 0 {
		return kit.SourceMessage{ID: id, ChatID: from.ChatID}, nil
	}
	var m wireMessage
	err := a.call(ctx, "forwardMessage", forwardParams{
		ChatID:              a.cfg.ScratchChatID,
		FromChatID:          from.ChatID,
		MessageID:           id,
		DisableNotification: true,
	}, &m)
	if err != nil {
		return kit.SourceMessage{}, err
	}
	a.deleteScratch(ctx, m.MessageID)
	return m.toSource(from.ChatID, id), nil
}

func (a *Adapter) deleteScratch(ctx context.Context, msgID int) {
	if msgID == 0 {
		return
	}
	if err := a.DeleteMessage(ctx, a.cfg.ScratchChatID, msgID); err != nil {
		a.log.Debug("scratch cleanup failed", logx.Int("msg_id", msgID), logx.Err(err))
	}
}

func (a *Adapter) DeleteMessage(ctx context.Context, chatID int64, msgID int) error {
	params := struct {
		ChatID    int64 `json:"chat_id"`
		MessageID int   `json:"message_id"`
	}{chatID, msgID}
	return a.call(ctx, "deleteMessage", params, nil)
}

// ChatTitle returns the title of a group chat ("" for private chats).
func (a *Adapter) ChatTitle(ctx context.Context, chatID int64) (string, error) {
	params := struct {
		ChatID int64 `json:"chat_id"`
	}{chatID}
	var res struct {
		Title string `json:"title"`
	}
	if err := a.call(ctx, "getChat", params, &res); err != nil {
		return "", err
	}
	return res.Title, nil
}

// CopyMessage copies id from from into to without a forward header.
// A non-nil caption replaces the caption of a media message.
func (a *Adapter) CopyMessage(ctx context.Context, from kit.ChatTarget, id int, to kit.ChatTarget, caption *string) (kit.MessageRef, error) {
	var res messageIDResult
	err := a.call(ctx, "copyMessage", copyParams{
		ChatID:     to.ChatID,
		ThreadID:   to.ThreadID,
		FromChatID: from.ChatID,
		MessageID:  id,
		Caption:    caption,
	}, &res)
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: res.MessageID}, nil
}

func (a *Adapter) ForwardMessage(ctx context.Context, from kit.ChatTarget, id int, to kit.ChatTarget) (kit.MessageRef, error) {
	var m wireMessage
	err := a.call(ctx, "forwardMessage", forwardParams{
		ChatID:     to.ChatID,
		ThreadID:   to.ThreadID,
		FromChatID: from.ChatID,
		MessageID:  id,
	}, &m)
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: m.MessageID}, nil
}

func (a *Adapter) SendMessage(ctx context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error) {
	return a.SendText(ctx, to, text, nil)
}

// CreateTopic creates a forum topic in chatID and returns its thread id.
func (a *Adapter) CreateTopic(ctx context.Context, chatID int64, name string) (int, error) {
	params := struct {
		ChatID int64  `json:"chat_id"`
		Name   string `json:"name"`
	}{chatID, name}
	var res struct {
		ThreadID int    `json:"message_thread_id"`
		Name     string `json:"name"`
	}
	if err := a.call(ctx, "createForumTopic", params, &res); err != nil {
		return 0, err
	}
	if res.ThreadID == 0 {
		return 0, fmt.Errorf("telegram createForumTopic: no thread id in response")
	}
	a.log.Info("forum topic created", logx.Int64("chat", chatID), logx.Int("thread", res.ThreadID), logx.String("name", name))
	return res.ThreadID, nil
}

// ResendDocument downloads the document of msg and uploads it to to under
// fileName. caption nil keeps the original caption.
func (a *Adapter) ResendDocument(ctx context.Context, msg kit.SourceMessage, to kit.ChatTarget, fileName string, caption *string) (kit.MessageRef, error) {
	if msg.Document == nil || msg.Document.FileID == "" {
		return kit.MessageRef{}, fmt.Errorf("message %d has no document", msg.ID)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	rc, err := a.bot.File(&tele.File{FileID: msg.Document.FileID})
	if err != nil {
		return kit.MessageRef{}, a.classify("getFile", nil, err)
	}
	defer rc.Close()

	text := msg.Text
	if caption != nil {
		text = *caption
	}
	doc := &tele.Document{
		File:     tele.FromReader(rc),
		FileName: fileName,
		MIME:     msg.Document.MIME,
		Caption:  text,
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	sent, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, doc, &tele.SendOptions{ThreadID: to.ThreadID})
	if err != nil {
		return kit.MessageRef{}, a.classify("sendDocument", nil, err)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: sent.ID}, nil
}
