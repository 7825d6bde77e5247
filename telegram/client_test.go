// Copyright (c) 2025 BVK Chaitanya

package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/bvkgo/kv/kvmemdb"
	"github.com/go-telegram/bot/models"
)

var testingSecrets *Secrets

func checkSecrets() bool {
	if testingSecrets != nil {
		return true
	}
	data, err := os.ReadFile("telegram-creds.json")
	if err != nil {
		return false
	}
	s := new(Secrets)
	if err := json.Unmarshal(data, s); err != nil {
		return false
	}
	if err := s.Check(); err != nil {
		return false
	}
	testingSecrets = s
	return true
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	if !checkSecrets() {
		t.Skip("no credentials")
		return
	}

	db := kvmemdb.New()
	c, err := New(ctx, db, testingSecrets)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	t.Logf("Authorized on account %s with owner %s", c.BotUserName(), c.OwnerUserName())

	c.SendMessage(ctx, time.Now(), "hello")
}

func commandUpdate(text string, length int) *models.Update {
	return &models.Update{
		Message: &models.Message{
			Text: text,
			Entities: []models.MessageEntity{
				{Type: models.MessageEntityTypeBotCommand, Offset: 0, Length: length},
			},
		},
	}
}

func TestGetCommand(t *testing.T) {
	c := &Client{commandMap: make(map[string]*Command)}
	c.commandMap["status"] = &Command{
		Purpose: "Prints engine status",
		Handler: func(ctx context.Context, args []string) error { return nil },
	}

	cmd, args, handler, err := c.getCommand(commandUpdate("/status group 1", 7))
	if err != nil {
		t.Fatal(err)
	}
	if cmd != "status" || handler == nil || len(args) != 2 || args[0] != "group" {
		t.Fatalf("unexpected command %q %v", cmd, args)
	}

	if cmd, _, _, err := c.getCommand(commandUpdate("/status@orbbot", 14)); err != nil || cmd != "status" {
		t.Fatalf("want status, got %q (%v)", cmd, err)
	}
	if _, _, _, err := c.getCommand(commandUpdate("/unknown", 8)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want os.ErrNotExist, got %v", err)
	}
	if _, _, _, err := c.getCommand(&models.Update{Message: &models.Message{Text: "hello"}}); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid, got %v", err)
	}

	ps := c.commands()
	if len(ps.Commands) != 1 || ps.Commands[0].Command != "status" {
		t.Fatalf("unexpected bot commands: %v", ps.Commands)
	}
}

func TestSecretsCheck(t *testing.T) {
	s := &Secrets{BotToken: "token", OwnerID: "owner", OtherIDs: []string{"owner"}}
	if err := s.Check(); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want %v for a repeated owner id, got %v", os.ErrInvalid, err)
	}
	s.OtherIDs = []string{"friend"}
	s.AdminID = "owner"
	if err := s.Check(); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want %v for an admin that is the owner, got %v", os.ErrInvalid, err)
	}
	s.AdminID = ""
	if err := s.Check(); err != nil {
		t.Fatal(err)
	}
	if c := s.Clone(); c.OtherIDs[0] != "friend" || &c.OtherIDs[0] == &s.OtherIDs[0] {
		t.Fatalf("want a deep copy")
	}
}
