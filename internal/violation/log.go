// 包 violation：会话级违规记录（环形缓冲），供管理端界面展示
package violation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"

	"geofence-api/internal/geo"
)

// DefaultCapacity：单会话保留的最大违规条数
const DefaultCapacity = 200

// 网格精度：6 字符约 1.2km，用于界面按网格聚合
const cellPrecision = 6

// Entry：一次违规
type Entry struct {
	ID        string          `json:"id"`
	Point     *geo.Coordinate `json:"point,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Cell      string          `json:"cell,omitempty"`
}

// NewEntry：填充 ID、时间与网格键；按区域名判定的违规没有坐标，p 为空
// 约束：NaN/Inf 坐标无法编码为 JSON，丢弃坐标、保留消息
func NewEntry(p *geo.Coordinate, typ, msg, userID string) Entry {
	if p != nil && !p.Finite() {
		p = nil
	}
	e := Entry{
		ID:        uuid.NewString(),
		Point:     p,
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Message:   msg,
		UserID:    userID,
	}
	if p != nil && p.Valid() {
		e.Cell = geohash.EncodeWithPrecision(p.Lat, p.Lng, cellPrecision)
	}
	return e
}

// Sink：违规外部持久化（审计）；写入失败不影响校验结果
type Sink interface {
	WriteViolation(ctx context.Context, e Entry) error
}

// 文档注释：违规记录（追加写、环形覆盖）
// 背景：仅保留最近若干条用于诊断与界面展示；不做持久化，持久化由 Sink 负责。
// 约束：Recent 按追加顺序返回，最新在最后；并发安全。
type Log struct {
	mu   sync.Mutex
	buf  []Entry
	head int
	n    int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]Entry, capacity)}
}

// Record：追加；缓冲已满时覆盖最旧条目
func (l *Log) Record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := (l.head + l.n) % len(l.buf)
	l.buf[idx] = e
	if l.n < len(l.buf) {
		l.n++
	} else {
		l.head = (l.head + 1) % len(l.buf)
	}
}

// Recent：最近 n 条；n<0 或超过现有条数时返回全部，n==0 返回空切片
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 0 || n > l.n {
		n = l.n
	}
	out := make([]Entry, 0, n)
	for i := l.n - n; i < l.n; i++ {
		out = append(out, l.buf[(l.head+i)%len(l.buf)])
	}
	return out
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.buf {
		l.buf[i] = Entry{}
	}
	l.head, l.n = 0, 0
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}
