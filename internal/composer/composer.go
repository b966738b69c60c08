// Package composer накапливает состояние черновика (текст, курсор, цель ответа/правки,
// вложения, поиск упоминания) и собирает из него один запрос на создание или правку.
package composer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/collab/internal/mention"
	"github.com/collab/internal/model"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// MaxAttachments — основное вложение плюс дополнительные.
const MaxAttachments = 10

var (
	ErrEmptyDraft         = errors.New("composer: empty draft")
	ErrTooManyAttachments = errors.New("composer: too many attachments")
	ErrThrottled          = errors.New("composer: sending too fast")
	ErrEditAttachments    = errors.New("composer: attachments cannot be added while editing")
)

// Uploader — blob-хранилище: upload(path, bytes) → публичный URL.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte) (string, error)
}

// Mode — что произойдёт при отправке.
type Mode int

const (
	ModeNew Mode = iota
	ModeReply
	ModeEdit
)

// Request — запрос на создание (EditOf == "") или правку сообщения.
type Request struct {
	ChannelID   string
	Body        string
	ParentID    *string
	EditOf      string
	Topic       string
	Attachment  *model.Attachment
	Attachments []model.Attachment
}

// Lookup — активный поиск упоминания.
type Lookup struct {
	Query    string
	At       int
	Results  []model.Member
	Selected int
}

// Draft — снимок состояния компоновщика.
type Draft struct {
	Text      string
	Cursor    int
	Mode      Mode
	TargetID  string
	Primary   *model.Attachment
	Secondary []model.Attachment
	Lookup    *Lookup
}

// Options — настройки компоновщика.
type Options struct {
	// Roster — текущий список участников для подсказок упоминаний.
	Roster       func() []model.Member
	Uploader     Uploader
	MentionLimit int
	// Limit/Burst — ограничение частоты отправки; Limit == 0 — без ограничения.
	Limit rate.Limit
	Burst int
}

// Composer безопасен для конкурентного использования.
type Composer struct {
	mu      sync.Mutex
	opts    Options
	limiter *rate.Limiter
	d       Draft
}

func New(opts Options) *Composer {
	if opts.MentionLimit <= 0 {
		opts.MentionLimit = mention.DefaultLimit
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if opts.Limit > 0 {
		if opts.Burst <= 0 {
			opts.Burst = 1
		}
		lim = rate.NewLimiter(opts.Limit, opts.Burst)
	}
	return &Composer{opts: opts, limiter: lim}
}

// Draft возвращает копию текущего состояния.
func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.d
	if d.Primary != nil {
		p := *d.Primary
		d.Primary = &p
	}
	d.Secondary = append([]model.Attachment(nil), d.Secondary...)
	if d.Lookup != nil {
		l := *d.Lookup
		l.Results = append([]model.Member(nil), l.Results...)
		d.Lookup = &l
	}
	return d
}

// SetText заменяет текст черновика и позицию курсора (в рунах) и пересчитывает поиск упоминания.
func (c *Composer) SetText(text string, cursor int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.d.Text = text
	c.d.Cursor = clamp(cursor, utf8.RuneCountInString(text))
	c.refreshLookup()
}

// Type вставляет s в позицию курсора, как при наборе с клавиатуры.
func (c *Composer) Type(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	runes := []rune(c.d.Text)
	at := clamp(c.d.Cursor, len(runes))
	ins := []rune(s)
	out := make([]rune, 0, len(runes)+len(ins))
	out = append(out, runes[:at]...)
	out = append(out, ins...)
	out = append(out, runes[at:]...)
	c.d.Text = string(out)
	c.d.Cursor = at + len(ins)
	c.refreshLookup()
}

// MoveCursor переносит курсор.
func (c *Composer) MoveCursor(pos int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.d.Cursor = clamp(pos, utf8.RuneCountInString(c.d.Text))
	c.refreshLookup()
}

func (c *Composer) refreshLookup() {
	q, at, ok := mention.ActiveQuery(c.d.Text, c.d.Cursor)
	if !ok {
		c.d.Lookup = nil
		return
	}
	var roster []model.Member
	if c.opts.Roster != nil {
		roster = c.opts.Roster()
	}
	c.d.Lookup = &Lookup{
		Query:   q,
		At:      at,
		Results: mention.Lookup(roster, q, c.opts.MentionLimit),
	}
}

// SelectNext/SelectPrev двигают выделение в списке подсказок по кругу.
func (c *Composer) SelectNext() { c.moveSelection(1) }

func (c *Composer) SelectPrev() { c.moveSelection(-1) }

func (c *Composer) moveSelection(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.d.Lookup
	if l == nil || len(l.Results) == 0 {
		return
	}
	n := len(l.Results)
	l.Selected = ((l.Selected+delta)%n + n) % n
}

// AcceptMention вставляет выделенную подсказку. false — подсказок нет.
func (c *Composer) AcceptMention() bool {
	c.mu.Lock()
	l := c.d.Lookup
	if l == nil || len(l.Results) == 0 {
		c.mu.Unlock()
		return false
	}
	m := l.Results[l.Selected]
	c.mu.Unlock()
	return c.InsertMention(m)
}

// InsertMention заменяет набранный фрагмент "@част" на "@Полное Имя " и ставит курсор после него.
func (c *Composer) InsertMention(m model.Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, at, ok := mention.ActiveQuery(c.d.Text, c.d.Cursor)
	if !ok {
		return false
	}
	runes := []rune(c.d.Text)
	cur := clamp(c.d.Cursor, len(runes))
	tok := []rune(mention.Token(m))
	out := make([]rune, 0, len(runes)+len(tok))
	out = append(out, runes[:at]...)
	out = append(out, tok...)
	out = append(out, runes[cur:]...)
	c.d.Text = string(out)
	c.d.Cursor = at + len(tok)
	c.d.Lookup = nil
	return true
}

// CancelMention закрывает список подсказок до следующего изменения текста.
func (c *Composer) CancelMention() {
	c.mu.Lock()
	c.d.Lookup = nil
	c.mu.Unlock()
}

// Wrap оборачивает выделение [start, end) разметкой стиля (повторный вызов снимает обёртку).
// Для StyleLink url подставляется в "(url)". Пустое выделение ставит курсор между маркерами.
func (c *Composer) Wrap(s Style, start, end int, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, from, to := wrap(c.d.Text, start, end, s, url)
	c.d.Text = text
	c.d.Cursor = to
	if from == to {
		c.d.Cursor = from
	}
	c.refreshLookup()
}

// ReplyTo переводит черновик в режим ответа в треде.
func (c *Composer) ReplyTo(parentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.d.Mode == ModeEdit {
		c.d.Text, c.d.Cursor = "", 0
	}
	c.d.Mode, c.d.TargetID = ModeReply, parentID
}

// Edit загружает тело сообщения в черновик для правки. Вложения черновика сбрасываются.
func (c *Composer) Edit(msg model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.d = Draft{
		Text:     msg.Body,
		Cursor:   utf8.RuneCountInString(msg.Body),
		Mode:     ModeEdit,
		TargetID: msg.ID,
	}
}

// ClearTarget возвращает черновик в режим нового сообщения. Текст правки отбрасывается.
func (c *Composer) ClearTarget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.d.Mode == ModeEdit {
		c.d.Text, c.d.Cursor, c.d.Lookup = "", 0, nil
	}
	c.d.Mode, c.d.TargetID = ModeNew, ""
}

// Stage добавляет уже загруженное вложение: первое становится основным, остальные — дополнительными по порядку.
func (c *Composer) Stage(a model.Attachment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stageLocked(a)
}

func (c *Composer) stageLocked(a model.Attachment) error {
	if c.d.Mode == ModeEdit {
		return ErrEditAttachments
	}
	if c.countLocked() >= MaxAttachments {
		return ErrTooManyAttachments
	}
	if c.d.Primary == nil {
		c.d.Primary = &a
		return nil
	}
	c.d.Secondary = append(c.d.Secondary, a)
	return nil
}

func (c *Composer) countLocked() int {
	n := len(c.d.Secondary)
	if c.d.Primary != nil {
		n++
	}
	return n
}

// Upload загружает файл в blob-хранилище и добавляет его в черновик.
// При ошибке загрузки черновик не меняется.
func (c *Composer) Upload(ctx context.Context, channelID, fileName string, data []byte) (model.Attachment, error) {
	if c.opts.Uploader == nil {
		return model.Attachment{}, errors.New("composer: no uploader configured")
	}
	c.mu.Lock()
	if c.d.Mode == ModeEdit {
		c.mu.Unlock()
		return model.Attachment{}, ErrEditAttachments
	}
	if c.countLocked() >= MaxAttachments {
		c.mu.Unlock()
		return model.Attachment{}, ErrTooManyAttachments
	}
	c.mu.Unlock()

	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	key := path.Join(channelID, uuid.NewString()+path.Ext(name))
	url, err := c.opts.Uploader.Upload(ctx, key, data)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("composer.Upload: %w", err)
	}
	a := model.Attachment{
		URL:         url,
		FileName:    name,
		FileSize:    int64(len(data)),
		ContentType: contentType(name),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.stageLocked(a); err != nil {
		return model.Attachment{}, err
	}
	return a, nil
}

func contentType(name string) model.ContentType {
	if (model.Attachment{FileName: name}).IsImage() {
		return model.ContentTypeImage
	}
	if t := mime.TypeByExtension(path.Ext(name)); strings.HasPrefix(t, "image/") {
		return model.ContentTypeImage
	}
	return model.ContentTypeFile
}

// Unstage убирает вложение по индексу в порядке AllAttachments (0 — основное).
// При удалении основного его место занимает первое дополнительное.
func (c *Composer) Unstage(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := c.allLocked()
	if i < 0 || i >= len(all) {
		return
	}
	all = append(all[:i], all[i+1:]...)
	c.d.Primary, c.d.Secondary = nil, nil
	for _, a := range all {
		_ = c.stageLocked(a)
	}
}

func (c *Composer) allLocked() []model.Attachment {
	var out []model.Attachment
	if c.d.Primary != nil {
		out = append(out, *c.d.Primary)
	}
	return append(out, c.d.Secondary...)
}

// Build собирает запрос из черновика, не меняя его.
func (c *Composer) Build(channelID, topic string) (Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildLocked(channelID, topic)
}

func (c *Composer) buildLocked(channelID, topic string) (Request, error) {
	body := strings.TrimSpace(c.d.Text)
	req := Request{ChannelID: channelID, Body: body}
	switch c.d.Mode {
	case ModeEdit:
		if body == "" {
			return Request{}, ErrEmptyDraft
		}
		req.EditOf = c.d.TargetID
		return req, nil
	case ModeReply:
		parent := c.d.TargetID
		req.ParentID = &parent
	default:
		if topic != model.DefaultTopic {
			req.Topic = topic
		}
	}
	if body == "" && c.d.Primary == nil {
		return Request{}, ErrEmptyDraft
	}
	if c.d.Primary != nil {
		p := *c.d.Primary
		req.Attachment = &p
	}
	req.Attachments = append([]model.Attachment(nil), c.d.Secondary...)
	if len(req.Attachments) == 0 {
		req.Attachments = nil
	}
	return req, nil
}

// SendFunc выполняет запрос (создание или правку) на стороне бэкенда.
type SendFunc func(ctx context.Context, req Request) error

// Submit собирает запрос и отправляет его. При ошибке черновик не трогается.
// После успеха из черновика убирается только отправленное: текст, набранный
// во время отправки, и вложения, добавленные позже, остаются. Режим ответа
// сохраняется между отправками.
func (c *Composer) Submit(ctx context.Context, channelID, topic string, send SendFunc) error {
	c.mu.Lock()
	req, err := c.buildLocked(channelID, topic)
	sent := c.d
	sent.Secondary = append([]model.Attachment(nil), c.d.Secondary...)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if !c.limiter.AllowN(time.Now(), 1) {
		return ErrThrottled
	}
	if err := send(ctx, req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.d = consume(c.d, sent)
	return nil
}

// consume убирает из текущего черновика cur то, что было отправлено из sent.
// Если отправленный текст успели переписать, а не дописать, текст остаётся как есть.
func consume(cur, sent Draft) Draft {
	out := Draft{Mode: cur.Mode, TargetID: cur.TargetID}
	if cur.Mode == sent.Mode && cur.TargetID == sent.TargetID && cur.Mode != ModeReply {
		out.Mode, out.TargetID = ModeNew, ""
	}

	switch {
	case cur.Text == sent.Text:
	case strings.HasPrefix(cur.Text, sent.Text):
		out.Text = cur.Text[len(sent.Text):]
		out.Cursor = clamp(cur.Cursor-utf8.RuneCountInString(sent.Text), utf8.RuneCountInString(out.Text))
	default:
		out.Text, out.Cursor, out.Lookup = cur.Text, cur.Cursor, cur.Lookup
	}

	if cur.Primary != nil && (sent.Primary == nil || cur.Primary.URL != sent.Primary.URL) {
		p := *cur.Primary
		out.Primary = &p
	}
	rest := cur.Secondary
	if len(rest) >= len(sent.Secondary) && sameAttachments(rest[:len(sent.Secondary)], sent.Secondary) {
		rest = rest[len(sent.Secondary):]
	}
	if out.Primary == nil && len(rest) > 0 {
		p := rest[0]
		out.Primary = &p
		rest = rest[1:]
	}
	if len(rest) > 0 {
		out.Secondary = append([]model.Attachment(nil), rest...)
	}
	return out
}

func sameAttachments(a, b []model.Attachment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].URL != b[i].URL {
			return false
		}
	}
	return true
}

// Reset очищает черновик полностью.
func (c *Composer) Reset() {
	c.mu.Lock()
	c.d = Draft{}
	c.mu.Unlock()
}
