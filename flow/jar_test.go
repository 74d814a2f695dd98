package flow

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kimlikaz/connect/middleware"
)

func newTestJar(t *testing.T) *Jar {
	t.Helper()
	key := make([]byte, middleware.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	j, err := NewJar("k1", map[string][]byte{"k1": key})
	if err != nil {
		t.Fatalf("NewJar: %v", err)
	}
	return j
}

func newAuth(t *testing.T, c *Client) *Authorization {
	t.Helper()
	a, err := c.NewAuthorization()
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	return a
}

// carry moves the jar cookie from a response into a fresh request,
// simulating the browser between redirect legs.
func carry(t *testing.T, w *httptest.ResponseRecorder, target string) *http.Request {
	t.Helper()
	r := httptest.NewRequest("GET", target, nil)
	for _, c := range w.Result().Cookies() {
		if c.Name == DefaultJarCookieName && c.MaxAge >= 0 {
			r.AddCookie(c)
		}
	}
	return r
}

func TestJar_PutPop(t *testing.T) {
	j := newTestJar(t)
	c, err := NewClient(testConfig("https://id.kimlik.az"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a := newAuth(t, c)

	w := httptest.NewRecorder()
	if err := j.Put(w, httptest.NewRequest("GET", "/auth/start", nil), a, "/dashboard"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r2 := carry(t, w, "/callback?state="+a.State)
	w2 := httptest.NewRecorder()
	restored, returnTo, err := j.Pop(w2, r2, a.State)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if returnTo != "/dashboard" {
		t.Fatalf("returnTo: got %q", returnTo)
	}
	if restored.State != a.State {
		t.Fatalf("state: got %q want %q", restored.State, a.State)
	}

	// The restored Authorization is unconsumed and carries the original
	// verifier.
	d, err := restored.Detach()
	if err != nil {
		t.Fatalf("Detach restored: %v", err)
	}
	orig, err := a.Detach()
	if err != nil {
		t.Fatalf("Detach original: %v", err)
	}
	if d.Verifier != orig.Verifier {
		t.Fatal("restored verifier differs from the original")
	}
}

func TestJar_PopIsOneShot(t *testing.T) {
	j := newTestJar(t)
	c, _ := NewClient(testConfig("https://id.kimlik.az"))
	a := newAuth(t, c)

	w := httptest.NewRecorder()
	if err := j.Put(w, httptest.NewRequest("GET", "/", nil), a, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r2 := carry(t, w, "/callback")
	w2 := httptest.NewRecorder()
	if _, _, err := j.Pop(w2, r2, a.State); err != nil {
		t.Fatalf("first Pop: %v", err)
	}

	// The first Pop rewrote the cookie without the entry; replaying that
	// response's cookie must find nothing.
	r3 := carry(t, w2, "/callback")
	if _, _, err := j.Pop(httptest.NewRecorder(), r3, a.State); !errors.Is(err, ErrNoPending) {
		t.Fatalf("second Pop: got %v want ErrNoPending", err)
	}
}

func TestJar_UnknownState(t *testing.T) {
	j := newTestJar(t)
	c, _ := NewClient(testConfig("https://id.kimlik.az"))
	a := newAuth(t, c)

	w := httptest.NewRecorder()
	if err := j.Put(w, httptest.NewRequest("GET", "/", nil), a, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r2 := carry(t, w, "/callback")
	if _, _, err := j.Pop(httptest.NewRecorder(), r2, "someone-elses-state"); !errors.Is(err, ErrNoPending) {
		t.Fatalf("got %v want ErrNoPending", err)
	}
}

func TestJar_NoCookie(t *testing.T) {
	j := newTestJar(t)
	r := httptest.NewRequest("GET", "/callback?state=x", nil)
	if _, _, err := j.Pop(httptest.NewRecorder(), r, "x"); !errors.Is(err, ErrNoPending) {
		t.Fatalf("got %v want ErrNoPending", err)
	}
}

func TestJar_EvictsOldestWhenFull(t *testing.T) {
	j := newTestJar(t)
	c, _ := NewClient(testConfig("https://id.kimlik.az"))

	auths := make([]*Authorization, maxPending+1)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	for i := range auths {
		auths[i] = newAuth(t, c)
		if err := j.Put(w, r, auths[i], fmt.Sprintf("/return/%d", i)); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
		r = carry(t, w, "/")
		w = httptest.NewRecorder()
	}

	// All entries share a TTL, so insertion order decides eviction; the
	// first one is gone, the rest remain.
	if _, _, err := j.Pop(httptest.NewRecorder(), r, auths[0].State); !errors.Is(err, ErrNoPending) {
		t.Fatalf("oldest entry still present: %v", err)
	}
	for i := 1; i < len(auths); i++ {
		w2 := httptest.NewRecorder()
		if _, _, err := j.Pop(w2, r, auths[i].State); err != nil {
			t.Fatalf("Pop %d: %v", i, err)
		}
		r = carry(t, w2, "/")
	}
}

func TestJar_TamperedCookieStartsEmpty(t *testing.T) {
	j := newTestJar(t)
	c, _ := NewClient(testConfig("https://id.kimlik.az"))
	a := newAuth(t, c)

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: DefaultJarCookieName, Value: "k1.garbage"})

	// Put must succeed over the garbage cookie.
	w := httptest.NewRecorder()
	if err := j.Put(w, r, a, ""); err != nil {
		t.Fatalf("Put over garbage cookie: %v", err)
	}
	r2 := carry(t, w, "/callback")
	if _, _, err := j.Pop(httptest.NewRecorder(), r2, a.State); err != nil {
		t.Fatalf("Pop: %v", err)
	}
}
