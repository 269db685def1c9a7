package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"backoffice/auth"
	"backoffice/dbtest"
	"backoffice/model"
)

func receive(t *testing.T, c *Client) model.ChangeEvent {
	t.Helper()
	select {
	case raw, ok := <-c.Send():
		require.True(t, ok, "client channel closed")
		var ev model.ChangeEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return model.ChangeEvent{}
	}
}

func TestHubFiltersByTableAndPermission(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zap.NewNop())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	viewer := NewClient("viewer", "", auth.PermissionsFor(auth.RoleViewer))
	invoicesOnly := NewClient("acct", "invoices", auth.PermissionsFor(auth.RoleAccountant))
	require.True(t, hub.Register(viewer))
	require.True(t, hub.Register(invoicesOnly))

	// viewers cannot see accounting; accountants only asked for invoices
	hub.Publish(model.ChangeEvent{Table: "vouchers", Action: model.ActionInsert, ID: 1})
	hub.Publish(model.ChangeEvent{Table: "leads", Action: model.ActionUpdate, ID: 2})
	hub.Publish(model.ChangeEvent{Table: "invoices", Action: model.ActionDelete, ID: 3})

	ev := receive(t, viewer)
	assert.Equal(t, "leads", ev.Table)
	assert.False(t, ev.At.IsZero())
	ev = receive(t, viewer)
	assert.Equal(t, "invoices", ev.Table)

	ev = receive(t, invoicesOnly)
	assert.Equal(t, "invoices", ev.Table)
	assert.Equal(t, model.ActionDelete, ev.Action)
	assert.Equal(t, int64(3), ev.ID)

	hub.Unregister(viewer)
	_, open := <-viewer.Send()
	assert.False(t, open)

	cancel()
	<-done
	_, open = <-invoicesOnly.Send()
	assert.False(t, open)
	assert.False(t, hub.Register(NewClient("late", "", nil)))
}

func TestHubDropsSlowClient(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zap.NewNop())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	slow := NewClient("slow", "leads", auth.PermissionsFor(auth.RoleAdmin))
	probe := &Client{ID: "probe", send: make(chan []byte, 4*sendBuffer), tables: map[string]bool{"leads": true}, permissions: auth.PermissionsFor(auth.RoleAdmin)}
	require.True(t, hub.Register(slow))
	require.True(t, hub.Register(probe))

	marker := int64(sendBuffer + 1)
	for i := int64(0); i <= marker; i++ {
		hub.Publish(model.ChangeEvent{Table: "leads", Action: model.ActionInsert, ID: i})
	}
	// events fan out in order, so once the probe sees the marker the slow
	// client has overflowed and been dropped
	for {
		if ev := receive(t, probe); ev.ID == marker {
			break
		}
	}

	received := 0
	for range slow.Send() {
		received++
	}
	assert.Equal(t, sendBuffer, received)
}

func TestNewClientParsesTables(t *testing.T) {
	c := NewClient("x", " leads, ,invoices ", auth.PermissionsFor(auth.RoleAdmin))
	assert.True(t, c.wants("leads"))
	assert.True(t, c.wants("invoices"))
	assert.False(t, c.wants("works"))
	assert.False(t, c.wants("unknown_table"))
}

func TestServeWS(t *testing.T) {
	db := dbtest.Open(t)
	sessions := auth.NewService(db, auth.NewIssuer("0123456789abcdef0123456789abcdef", time.Hour))
	ctx := context.Background()
	_, err := sessions.CreateUser(ctx, "a@example.com", "password1", "A", auth.RoleStaff)
	require.NoError(t, err)
	sess, err := sessions.SignIn(ctx, "a@example.com", "password1")
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	hub := NewHub(zap.NewNop())
	go hub.Run(runCtx)

	srv := httptest.NewServer(ServeWSHandler(hub, sessions, []string{"*"}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?tables=works&token="+sess.Token, nil)
	require.NoError(t, err)
	defer conn.Close()

	hub.Publish(model.ChangeEvent{Table: "leads", Action: model.ActionInsert, ID: 8})
	hub.Publish(model.ChangeEvent{Table: "works", Action: model.ActionInsert, ID: 9})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev model.ChangeEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "works", ev.Table)
	assert.Equal(t, int64(9), ev.ID)
}

func TestHubSetPermissions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(zap.NewNop())
	go hub.Run(ctx)

	c := NewClient("acct", "", auth.PermissionsFor(auth.RoleAccountant))
	require.True(t, hub.Register(c))

	hub.Publish(model.ChangeEvent{Table: "vouchers", Action: model.ActionInsert, ID: 1})
	assert.Equal(t, "vouchers", receive(t, c).Table)

	hub.SetPermissions(c, auth.PermissionsFor(auth.RoleViewer))
	hub.Publish(model.ChangeEvent{Table: "vouchers", Action: model.ActionInsert, ID: 2})
	hub.Publish(model.ChangeEvent{Table: "leads", Action: model.ActionInsert, ID: 3})
	ev := receive(t, c)
	assert.Equal(t, "leads", ev.Table)
	assert.Equal(t, int64(3), ev.ID)
}

func TestServeWSClosesWhenUserDeactivated(t *testing.T) {
	period := checkPeriod
	checkPeriod = 50 * time.Millisecond
	t.Cleanup(func() { checkPeriod = period })

	db := dbtest.Open(t)
	sessions := auth.NewService(db, auth.NewIssuer("0123456789abcdef0123456789abcdef", time.Hour))
	ctx := context.Background()
	_, err := sessions.CreateUser(ctx, "admin@example.com", "password1", "Admin", auth.RoleAdmin)
	require.NoError(t, err)
	u, err := sessions.CreateUser(ctx, "b@example.com", "password1", "B", auth.RoleAccountant)
	require.NoError(t, err)
	sess, err := sessions.SignIn(ctx, "b@example.com", "password1")
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	hub := NewHub(zap.NewNop())
	go hub.Run(runCtx)

	srv := httptest.NewServer(ServeWSHandler(hub, sessions, []string{"*"}))
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"?token="+sess.Token, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, err = sessions.SetActive(ctx, u.ID, false)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, _, err = conn.ReadMessage()
		if err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "%v", err)
}
