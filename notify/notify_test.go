package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"craiseek/config"
	"craiseek/models"
)

func TestFormatMessage(t *testing.T) {
	price := int64(180000)
	l := &models.Listing{
		Title:        "Bright 2BR near park",
		URL:          "https://sfbay.craigslist.org/apa/d/x/7001.html",
		PriceCents:   &price,
		Neighborhood: "Mission District",
	}
	got := FormatMessage(l)
	want := "New listing: $1,800 - Bright 2BR near park in Mission District. Link: https://sfbay.craigslist.org/apa/d/x/7001.html"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestFormatMessageNoPriceNoHood(t *testing.T) {
	l := &models.Listing{
		Title: "Cozy room",
		URL:   "https://x.test/1",
	}
	got := FormatMessage(l)
	want := "New listing: price unlisted - Cozy room. Link: https://x.test/1"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{180000, "$1,800"},
		{320050, "$3,200.50"},
		{95000, "$950"},
		{460000, "$4,600"},
		{123456789, "$1,234,567.89"},
	}
	for _, tc := range cases {
		if got := FormatPrice(&tc.cents); got != tc.want {
			t.Fatalf("%d cents: got %q want %q", tc.cents, got, tc.want)
		}
	}
	if got := FormatPrice(nil); got != "price unlisted" {
		t.Fatalf("nil price: got %q", got)
	}
}

func TestTwilioSenderClassifiesResponses(t *testing.T) {
	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("To") != "+15551230000" {
			t.Errorf("unexpected To: %s", r.PostForm.Get("To"))
		}
		w.WriteHeader(status)
	}))
	defer server.Close()

	sender := NewTwilioSender(config.TwilioConfig{
		AccountSID: "AC123", AuthToken: "tok", FromNumber: "+15550001111",
	})
	sender.baseURL = server.URL

	status = http.StatusCreated
	if err := sender.Send(context.Background(), "+15551230000", "hi"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	status = http.StatusBadRequest
	err := sender.Send(context.Background(), "+15551230000", "hi")
	de, ok := AsDeliveryError(err)
	if !ok {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if de.Kind != KindInvalidAddress || de.Transient() {
		t.Fatalf("400 should be permanent invalid_address, got %+v", de)
	}

	status = http.StatusServiceUnavailable
	err = sender.Send(context.Background(), "+15551230000", "hi")
	de, ok = AsDeliveryError(err)
	if !ok {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if de.Kind != KindProviderError || !de.Transient() {
		t.Fatalf("503 should be transient provider_error, got %+v", de)
	}
}

func TestChatSenderPostsJSON(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %s", ct)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewChatSender(config.ChatConfig{WebhookURL: server.URL, AuthToken: "secret"})
	if err := sender.Send(context.Background(), "@renter", "hi"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("missing auth header, got %q", gotAuth)
	}
}

func TestChatSenderUnknownHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	sender := NewChatSender(config.ChatConfig{WebhookURL: server.URL})
	err := sender.Send(context.Background(), "@ghost", "hi")
	de, ok := AsDeliveryError(err)
	if !ok {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if de.Kind != KindInvalidAddress {
		t.Fatalf("404 should mean unknown handle, got %s", de.Kind)
	}
}

func TestMockSenderRecords(t *testing.T) {
	m := NewMockSender(models.ChannelSMS)
	if err := m.Send(context.Background(), "+1555", "msg"); err != nil {
		t.Fatalf("send: %v", err)
	}
	sent := m.Sent()
	if len(sent) != 1 || sent[0].Address != "+1555" {
		t.Fatalf("unexpected sent log: %+v", sent)
	}

	if err := m.Send(context.Background(), "", "msg"); err == nil {
		t.Fatal("empty address should fail")
	}
}
