// README: Entry point; loads config, wires stores, providers and services, starts the HTTP server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scrapyard/internal/auth"
	"scrapyard/internal/config"
	httptransport "scrapyard/internal/http"
	"scrapyard/internal/infra"
	"scrapyard/internal/maps"
	"scrapyard/internal/modules/account"
	"scrapyard/internal/modules/chat"
	"scrapyard/internal/modules/notify"
	"scrapyard/internal/modules/otp"
	"scrapyard/internal/modules/pickup"
	"scrapyard/internal/modules/pricing"
	"scrapyard/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Log.Development)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DB.Migrate {
		if err := infra.Migrate(cfg.DB.DSN); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	otpSvc := newOTPService(cfg, redisClient, logger)

	issuer := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	accountSvc := account.NewService(account.NewStore(dbPool), issuer, otpSvc, logger)
	pricingSvc := pricing.NewService(pricing.NewStore(dbPool))

	deps := pickup.Deps{
		Pricing:  pricingSvc,
		Profiles: accountSvc,
		Codes:    otpSvc,
		Attempts: verifyAttempts(cfg, redisClient),
		CodeTTL:  cfg.OTP.CodeTTL,
	}
	if cfg.Firebase.ProjectID != "" {
		client, err := infra.NewFirebaseMessaging(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Fatal("firebase init", zap.Error(err))
		}
		deps.Notifier = notify.NewFCM(client, logger)
	}
	if cfg.Maps.APIKey != "" {
		geocoder, err := maps.NewGeocoder(cfg.Maps.APIKey, "in")
		if err != nil {
			logger.Fatal("maps init", zap.Error(err))
		}
		deps.Geocoder = geocoder
	}
	pickupSvc := pickup.NewService(pickup.NewStore(dbPool), deps, logger)
	chatSvc := chat.NewService(chat.NewStore(dbPool), pickupSvc, logger)

	uploads := storage.NewUploader(nil)
	if cfg.S3.Bucket != "" {
		blob, err := infra.NewS3Store(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.Endpoint, cfg.S3.PublicRead)
		if err != nil {
			logger.Fatal("s3 init", zap.Error(err))
		}
		uploads = storage.NewUploader(blob)
	} else {
		logger.Warn("SCRAP_S3_BUCKET not set; file uploads are disabled")
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Accounts:  accountSvc,
		OTP:       otpSvc,
		Pickups:   pickupSvc,
		Chat:      chatSvc,
		Pricing:   pricingSvc,
		Uploads:   uploads,
		Tokens:    issuer,
		ExposeOTP: cfg.OTP.ExposeCode,
	}, logger)

	server := httptransport.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ShutdownTimeout, logger)
	if err := server.Run(ctx); err != nil {
		logger.Fatal("http server", zap.Error(err))
	}
}

// newOTPService picks the verification provider. Twilio Verify owns codes for
// the generic flow; pickup codes always go out as plain SMS when Twilio
// messaging is configured, and to the log otherwise.
func newOTPService(cfg config.Config, rdb *redis.Client, logger *zap.Logger) *otp.Service {
	creds := otp.TwilioCredentials{
		AccountSID:       cfg.Twilio.AccountSID,
		AuthToken:        cfg.Twilio.AuthToken,
		VerifyServiceSID: cfg.Twilio.VerifyServiceSID,
		FromNumber:       cfg.Twilio.FromNumber,
	}
	var sender otp.CodeSender = otp.NewConsoleSender(logger)
	if sms := otp.NewTwilioSMS(creds, cfg.OTP.CodeTTL, logger); sms.Configured() {
		sender = sms
	} else {
		logger.Warn("twilio messaging not configured; OTP codes are written to the log")
	}

	var gateway otp.Gateway
	switch cfg.OTP.Provider {
	case "twilio":
		verify := otp.NewTwilioVerify(creds, logger)
		if !verify.Configured() {
			logger.Warn("twilio verify not configured; /otp/send answers 503")
		}
		gateway = verify
	default:
		gateway = otp.NewLocalGateway(rdb, sender, cfg.OTP.CodeTTL, logger)
	}
	limiter := otp.NewLimiter(rdb, otp.ScopeSend, cfg.OTP.SendPerHour, time.Hour)
	return otp.NewService(gateway, sender, limiter, verifyAttempts(cfg, rdb), cfg.OTP.DefaultCountryCode, logger)
}

// verifyAttempts caps wrong guesses per contact or pickup for one code lifetime.
func verifyAttempts(cfg config.Config, rdb *redis.Client) *otp.Limiter {
	return otp.NewLimiter(rdb, otp.ScopeVerify, cfg.OTP.VerifyAttempts, cfg.OTP.CodeTTL)
}
