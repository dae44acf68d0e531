package http

import (
	"bytes"
	"encoding/base64"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bird-quiz-service/internal/app"
	"bird-quiz-service/internal/domain"
	"bird-quiz-service/internal/mailbox"
)

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
	Resumed   bool   `json:"resumed"`
}

type hintPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Text          string `json:"text"`
}

type hintImagePayload struct {
	QuestionIndex int    `json:"questionIndex"`
	MimeType      string `json:"mimeType"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Data          string `json:"data"`

	img image.Image
}

type hintAssetPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Path          string `json:"path"`
}

type progressPayload struct {
	Primary   int `json:"primary"`
	Secondary int `json:"secondary"`
}

type noticePayload struct {
	Code app.Notice `json:"code"`
}

type tickPayload struct {
	RemainingMs int64 `json:"remainingMs"`
}

// jpegQuality of hint images sent to clients.
const jpegQuality = 85

// connView renders a session onto one websocket connection. Messages are
// queued and written by a single goroutine, so session callbacks never block on the network.
type connView struct {
	conn   *websocket.Conn
	out    *mailbox.Mailbox[outboundMessage[any]]
	logger zerolog.Logger
}

func newConnView(conn *websocket.Conn, logger zerolog.Logger) *connView {
	v := &connView{conn: conn, out: mailbox.New[outboundMessage[any]](), logger: logger}
	v.out.Attach(v.write)
	return v
}

func (v *connView) send(typ string, payload any) {
	v.out.Post(outboundMessage[any]{Type: typ, Payload: payload})
}

func (v *connView) write(msg outboundMessage[any]) {
	if p, ok := msg.Payload.(hintImagePayload); ok {
		encoded, err := encodeHintImage(p)
		if err != nil {
			v.logger.Warn().Err(err).Int("question", p.QuestionIndex).Msg("hint image not encoded")
			msg = outboundMessage[any]{Type: "notice", Payload: noticePayload{Code: app.NoticeHintImageUnavailable}}
		} else {
			msg.Payload = encoded
		}
	}
	_ = v.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := v.conn.WriteJSON(msg); err != nil {
		v.logger.Debug().Err(err).Str("type", msg.Type).Msg("ws write error")
	}
}

func (v *connView) close() {
	v.out.Close()
}

func encodeHintImage(p hintImagePayload) (hintImagePayload, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, p.img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return p, err
	}
	b := p.img.Bounds()
	p.MimeType = "image/jpeg"
	p.Width = b.Dx()
	p.Height = b.Dy()
	p.Data = base64.StdEncoding.EncodeToString(buf.Bytes())
	p.img = nil
	return p, nil
}

func (v *connView) ShowQuestion(q app.QuestionView) { v.send("question", q) }

func (v *connView) ShowHint(questionIndex int, text string) {
	v.send("hint", hintPayload{QuestionIndex: questionIndex, Text: text})
}

func (v *connView) ShowHintImage(questionIndex int, img image.Image) {
	v.send("hintImage", hintImagePayload{QuestionIndex: questionIndex, img: img})
}

func (v *connView) ShowHintAsset(questionIndex int, path string) {
	v.send("hintAsset", hintAssetPayload{QuestionIndex: questionIndex, Path: path})
}

func (v *connView) ShowProgress(primary, secondary int) {
	v.send("progress", progressPayload{Primary: primary, Secondary: secondary})
}

func (v *connView) HideProgress() { v.send("progressDone", struct{}{}) }

func (v *connView) Notify(n app.Notice) { v.send("notice", noticePayload{Code: n}) }

func (v *connView) ShowTick(remaining time.Duration) {
	v.send("tick", tickPayload{RemainingMs: remaining.Milliseconds()})
}

func (v *connView) ShowSummary(s domain.Summary) { v.send("summary", s) }
