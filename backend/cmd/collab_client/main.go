package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/PedroReis16/live-document-app-sub000/backend/config"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/api"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/authtoken"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/channel"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/collab"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/docstore"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

const help = `lines are appended to the document content
:title <text>         rename
:save                 save now
:list                 refresh the document list
:open <id>            open another document
:new                  start a local draft
:collab on|off        toggle collaboration
:who                  show collaborators
:share <email> <p>    invite with read, write or admin
:code                 create a share code
:join <code>          open a document from a share code
:quit`

func main() {
	docID := flag.String("doc", "", "document id to open; empty starts a draft")
	collabOn := flag.Bool("collab", true, "join the document room")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	token := cfg.Auth.Token
	if token == "" {
		log.Fatalf("no token: set COLLAB_AUTH_TOKEN (collab_server -mint <user> prints one)")
	}
	claims, err := authtoken.Identity(token)
	if err != nil {
		log.Fatalf("read token failed: %v", err)
	}

	client := api.New(cfg.API.BaseURL,
		api.WithToken(token),
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
	)
	ch := channel.New(cfg.Realtime.URL,
		channel.WithBackOff(func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = cfg.Realtime.ReconnectMaxElapsed
			return b
		}),
		// pasted blocks arrive as a burst of edit frames
		channel.WithSendBuffer(256),
	)
	ctx := context.Background()
	if err := ch.Connect(ctx, token); err != nil {
		// editing still works; saves go through REST
		log.Printf("realtime connect error: %v", err)
	}
	defer ch.Disconnect()

	store := docstore.New()
	editor := collab.NewEditor(client, ch, store, collab.EditorConfig{
		Token:          token,
		SelfID:         claims.UserID,
		SaveDebounce:   cfg.Editor.SaveDebounce,
		TypingWindow:   cfg.Editor.TypingWindow,
		RequestTimeout: cfg.API.Timeout,
	})
	defer editor.Close()
	library := collab.NewLibrary(client, store, claims.UserID, nil)

	cancel := store.Subscribe(func(s docstore.Snapshot) {
		if s.Document != nil {
			log.Printf("[%s] %q (%d chars)", s.Document.ID, s.Document.Title, len(s.Document.Content))
		}
	})
	defer cancel()

	if _, err := library.Refresh(ctx); err != nil {
		log.Printf("list documents error: %v", err)
	}
	if err := editor.SetCollaboration(ctx, *collabOn); err != nil {
		log.Printf("collaboration error: %v", err)
	}
	if *docID != "" {
		if err := editor.Open(ctx, *docID); err != nil {
			log.Fatalf("open %s failed: %v", *docID, err)
		}
	} else {
		editor.NewDraft()
	}
	fmt.Println(help)

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := in.Text()
		if !strings.HasPrefix(line, ":") {
			doc, ok := store.Current()
			if !ok {
				continue
			}
			editor.Typing()
			editor.Edit(model.ContentChange(doc.Content + line + "\n"))
			continue
		}
		cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
		if cmd == "quit" {
			break
		}
		if err := run(ctx, editor, library, store, cmd, strings.TrimSpace(arg)); err != nil {
			log.Printf("%s error: %v", cmd, err)
		}
	}

	if editor.Dirty() {
		saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if _, err := editor.Save(saveCtx); err != nil {
			log.Printf("final save error: %v", err)
		}
	}
}

func run(ctx context.Context, editor *collab.Editor, library *collab.Library, store *docstore.Store, cmd, arg string) error {
	switch cmd {
	case "title":
		editor.Edit(model.TitleChange(arg))
	case "save":
		doc, err := editor.Save(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("saved %s\n", doc.ID)
	case "list":
		docs, err := library.Refresh(ctx)
		if err != nil {
			return err
		}
		for _, d := range docs {
			fmt.Printf("%-40s %s\n", d.ID, d.Title)
		}
	case "open":
		return editor.Open(ctx, arg)
	case "new":
		fmt.Printf("draft %s\n", editor.NewDraft().ID)
	case "collab":
		return editor.SetCollaboration(ctx, arg != "off")
	case "who":
		for _, c := range store.Collaborators() {
			typing := ""
			if c.Typing {
				typing = " (typing)"
			}
			fmt.Printf("%-20s %-6s %s%s\n", c.Name, c.Permission, c.Status, typing)
		}
	case "share":
		email, perm, _ := strings.Cut(arg, " ")
		c, err := library.Share(ctx, email, strings.TrimSpace(perm))
		if err != nil {
			return err
		}
		fmt.Printf("shared with %s as %s\n", c.ID, c.Permission)
	case "code":
		code, err := library.ShareCode(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("code %s valid until %s\n", code.Code, code.ExpiresAt.Format(time.Kitchen))
	case "join":
		doc, err := library.JoinByCode(ctx, arg)
		if err != nil {
			return err
		}
		return editor.Open(ctx, doc.ID)
	default:
		fmt.Println(help)
	}
	return nil
}
