package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// Smoke-drives a running API instance end to end: signup, signin, borrow the
// first available book, return it, and check the copy count came back.

type session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

type book struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	AvailableCopies int    `json:"available_copies"`
	Available       bool   `json:"available"`
}

type loan struct {
	ID     string `json:"id"`
	BookID string `json:"book_id"`
	Status string `json:"status"`
}

func main() {
	baseURL := os.Getenv("LIBRIS_SMOKE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}

	email := fmt.Sprintf("smoke-%d@example.edu", rand.New(rand.NewSource(time.Now().UnixNano())).Int())
	password := "smoke-password-1"

	var sess session
	call(client, http.MethodPost, baseURL+"/v1/auth/signup", map[string]any{
		"full_name":     "Smoke Tester",
		"email":         email,
		"university_id": "SMOKE-1",
		"password":      password,
	}, "", http.StatusCreated, &sess)

	// A fresh signin must mint a working token too.
	call(client, http.MethodPost, baseURL+"/v1/auth/signin", map[string]any{
		"email":    email,
		"password": password,
	}, "", http.StatusOK, &sess)

	var listing struct {
		Books []book `json:"books"`
	}
	call(client, http.MethodGet, baseURL+"/v1/books", nil, sess.Token, http.StatusOK, &listing)

	var target *book
	for i := range listing.Books {
		if listing.Books[i].Available {
			target = &listing.Books[i]
			break
		}
	}
	if target == nil {
		log.Fatal("no available book in the catalog; seed the database first")
	}
	before := target.AvailableCopies

	var l loan
	call(client, http.MethodPost, baseURL+"/v1/loans", map[string]any{
		"book_id": target.ID,
	}, sess.Token, http.StatusCreated, &l)
	if l.Status != "BORROWED" {
		log.Fatalf("unexpected loan status after borrow: %s", l.Status)
	}

	var mid book
	call(client, http.MethodGet, baseURL+"/v1/books/"+target.ID, nil, sess.Token, http.StatusOK, &mid)
	if mid.AvailableCopies != before-1 {
		log.Fatalf("borrow did not decrement: %d -> %d", before, mid.AvailableCopies)
	}

	call(client, http.MethodPost, baseURL+"/v1/loans/"+l.ID+"/return", nil, sess.Token, http.StatusOK, &l)
	if l.Status != "RETURNED" {
		log.Fatalf("unexpected loan status after return: %s", l.Status)
	}

	var after book
	call(client, http.MethodGet, baseURL+"/v1/books/"+target.ID, nil, sess.Token, http.StatusOK, &after)
	if after.AvailableCopies != before {
		log.Fatalf("return did not restore availability: %d -> %d", before, after.AvailableCopies)
	}

	fmt.Printf("✅ libris smoke test passed: user=%s book=%q loan=%s\n", sess.UserID, target.Title, l.ID)
}

func call(client *http.Client, method, url string, body any, token string, wantStatus int, dst any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s: %v", url, err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: status %d, want %d", method, url, resp.StatusCode, wantStatus)
	}
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			log.Fatalf("decode %s: %v", url, err)
		}
	}
}
