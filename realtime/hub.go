// Package realtime fans committed changes out to websocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"backoffice/auth"
	"backoffice/metrics"
	"backoffice/model"
)

const (
	sendBuffer      = 32
	broadcastBuffer = 256
)

// Publisher is implemented by anything that accepts change events.
type Publisher interface {
	Publish(ev model.ChangeEvent)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(model.ChangeEvent) {}

// tableResources maps a table to the resource whose view permission a
// subscriber needs to receive its events.
var tableResources = map[string]auth.Resource{
	"leads":            auth.ResourceLeads,
	"customers":        auth.ResourceCustomers,
	"works":            auth.ResourceWorks,
	"invoices":         auth.ResourceInvoices,
	"invoice_payments": auth.ResourceInvoices,
	"staff":            auth.ResourceStaff,
	"accounts":         auth.ResourceAccounting,
	"vouchers":         auth.ResourceAccounting,
	"users":            auth.ResourceUsers,
}

// Client is one subscriber. Tables empty means every table.
type Client struct {
	ID          string
	send        chan []byte
	tables      map[string]bool
	permissions auth.Permissions
}

// NewClient creates a subscriber for the comma-separated tables list.
func NewClient(id, tables string, perms auth.Permissions) *Client {
	set := make(map[string]bool)
	for _, t := range strings.Split(tables, ",") {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = true
		}
	}
	return &Client{ID: id, send: make(chan []byte, sendBuffer), tables: set, permissions: perms}
}

// Send is closed when the hub drops the client or stops.
func (c *Client) Send() <-chan []byte { return c.send }

func (c *Client) wants(table string) bool {
	if len(c.tables) > 0 && !c.tables[table] {
		return false
	}
	res, ok := tableResources[table]
	return ok && c.permissions.Can(res, auth.ActionView)
}

type permissionUpdate struct {
	client      *Client
	permissions auth.Permissions
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	update     chan permissionUpdate
	broadcast  chan model.ChangeEvent
	done       chan struct{}
	clients    map[*Client]struct{}
	log        *zap.Logger
	now        func() time.Time
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		update:     make(chan permissionUpdate),
		broadcast:  make(chan model.ChangeEvent, broadcastBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		log:        log,
		now:        time.Now,
	}
}

// Run serves the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			metrics.RealtimeClientConnected()
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
			}
		case u := <-h.update:
			if _, ok := h.clients[u.client]; ok {
				u.client.permissions = u.permissions
			}
		case ev := <-h.broadcast:
			h.fanOut(ev)
		}
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	metrics.RealtimeClientDisconnected()
}

func (h *Hub) fanOut(ev model.ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("failed to encode change event", zap.String("table", ev.Table), zap.Error(err))
		return
	}
	for c := range h.clients {
		if !c.wants(ev.Table) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.log.Warn("dropping slow realtime client", zap.String("client", c.ID))
			metrics.RealtimeClientDropped()
			h.remove(c)
		}
	}
}

// Register adds c. It returns false when the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// SetPermissions replaces what c is allowed to see. Events published after
// it returns are filtered with perms.
func (h *Hub) SetPermissions(c *Client, perms auth.Permissions) {
	select {
	case h.update <- permissionUpdate{client: c, permissions: perms}:
	case <-h.done:
	}
}

// Publish queues ev without blocking. Events are dropped when the queue is full.
func (h *Hub) Publish(ev model.ChangeEvent) {
	if ev.At.IsZero() {
		ev.At = h.now().UTC()
	}
	select {
	case h.broadcast <- ev:
	default:
		h.log.Warn("realtime queue full, dropping event", zap.String("table", ev.Table), zap.Int64("id", ev.ID))
	}
}

// Changed builds and publishes an event in one call.
func Changed(p Publisher, table, action string, id int64, record any) {
	if p == nil {
		return
	}
	p.Publish(model.ChangeEvent{Table: table, Action: action, ID: id, Record: record})
}
