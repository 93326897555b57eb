package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/park285/cheese-arena/internal/auth"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func main() {
	wsURL := os.Getenv("ARENA_WS_URL")
	secret := os.Getenv("JWT_SECRET")
	issuer := os.Getenv("JWT_ISSUER")
	userID := os.Getenv("CHECK_USER_ID")

	if wsURL == "" {
		log.Fatal("ARENA_WS_URL is required")
	}
	if userID == "" {
		userID = "arenacheck"
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		log.Fatalf("bad ARENA_WS_URL: %v", err)
	}
	if secret != "" {
		v, err := auth.NewVerifier(secret, issuer)
		if err != nil {
			log.Fatalf("verifier: %v", err)
		}
		tok, err := v.Issue(userID, userID, 5*time.Minute)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		q := u.Query()
		q.Set("token", tok)
		u.RawQuery = q.Encode()
	} else {
		log.Println("JWT_SECRET not set; connecting unauthenticated")
	}

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	c, _, err := websocket.Dial(cctx, u.String(), nil)
	if err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	if err := wsjson.Write(cctx, c, arenadto.Envelope{Type: arenadto.EvListRooms}); err != nil {
		log.Printf("WS write error: %v", err)
		return
	}

	// Observe for a short window
	octx, ocancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ocancel()
	for {
		var ev map[string]any
		if err := wsjson.Read(octx, c, &ev); err != nil {
			return
		}
		fmt.Printf("WS event type=%v payload=%v\n", ev["type"], ev["payload"])
	}
}
