package bridge

import (
	"errors"
	"testing"
)

func TestTransport_PopupBlockedIsSynchronous(t *testing.T) {
	blocked := func(url string, w, h int) (Window, error) {
		return nil, nil // the host's window.open returned null
	}
	tr := NewTransport(blocked, nil)

	_, err := tr.Open("https://id.kimlik.az/oauth/authorize", ModePopup)
	if !errors.Is(err, ErrPopupBlocked) {
		t.Fatalf("got %v want ErrPopupBlocked", err)
	}
}

func TestTransport_PopupOpenError(t *testing.T) {
	boom := errors.New("display unavailable")
	tr := NewTransport(func(string, int, int) (Window, error) { return nil, boom }, nil)

	_, err := tr.Open("u", ModePopup)
	if !errors.Is(err, ErrPopupBlocked) || !errors.Is(err, boom) {
		t.Fatalf("got %v, want ErrPopupBlocked wrapping the cause", err)
	}
}

func TestTransport_PopupSize(t *testing.T) {
	var gotW, gotH int
	open := func(url string, w, h int) (Window, error) {
		gotW, gotH = w, h
		return &fakeWindow{}, nil
	}

	tr := NewTransport(open, nil)
	if _, err := tr.Open("u", ModePopup); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if gotW != DefaultPopupWidth || gotH != DefaultPopupHeight {
		t.Fatalf("default size: got %dx%d", gotW, gotH)
	}

	tr = NewTransport(open, nil, WithPopupSize(320, 640))
	if _, err := tr.Open("u", ModePopup); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if gotW != 320 || gotH != 640 {
		t.Fatalf("custom size: got %dx%d", gotW, gotH)
	}
}

func TestTransport_RedirectNavigates(t *testing.T) {
	var navigated string
	tr := NewTransport(nil, func(url string) { navigated = url })

	win, err := tr.Open("https://id.kimlik.az/oauth/authorize?x=1", ModeRedirect)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if win != nil {
		t.Fatal("redirect mode returned a window")
	}
	if navigated != "https://id.kimlik.az/oauth/authorize?x=1" {
		t.Fatalf("navigated to %q", navigated)
	}
}

func TestTransport_MissingFuncs(t *testing.T) {
	tr := NewTransport(nil, nil)
	if _, err := tr.Open("u", ModePopup); err == nil {
		t.Error("popup mode without opener accepted")
	}
	if _, err := tr.Open("u", ModeRedirect); err == nil {
		t.Error("redirect mode without navigator accepted")
	}
}
