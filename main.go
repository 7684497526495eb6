package main

import (
	"context"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus/internal/auth"
	"campus/internal/commands"
	"campus/internal/config"
	"campus/internal/filestore"
	"campus/internal/http"
	"campus/internal/notify"
	"campus/internal/storage"
	"campus/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, addAdmin string) error {
	cfg, err := config.Load(addAdmin != "")
	if err != nil {
		return err
	}

	if addAdmin != "" {
		return commands.AddAdmin(addAdmin, cfg)
	}

	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	files, err := filestore.NewLocalFileStore(cfg.UploadsPath)
	if err != nil {
		return err
	}

	authService, err := auth.NewService(ctx, auth.Config{
		Secret:      cfg.JWTSecret,
		TokenExpiry: cfg.TokenExpiry,
	}, store)
	if err != nil {
		return err
	}

	hub := ws.NewHub(ctx, store)

	var email notify.EmailSender
	if cfg.SMTPHost != "" {
		email = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	}
	var sms notify.SMSSender
	if cfg.SMSEndpoint != "" {
		sms = notify.NewHTTPSMSSender(cfg.SMSEndpoint, cfg.SMSAccount, cfg.SMSToken, cfg.SMSFrom)
	}
	var push notify.PushSender
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		push = notify.NewWebPushSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	}
	notifier := notify.NewNotifier(store, hub, email, sms, push)

	apiServer := http.NewAPIServer(authService, hub, notifier, store, files, cfg.APIAddr, cfg.BaseURL)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	addAdmin := flag.String("add-admin", "", "Username to create as admin (random password is printed)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addAdmin); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
