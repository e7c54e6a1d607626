/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ariesmongodbstorage "github.com/hyperledger/aries-framework-go-ext/component/storage/mongodb"
	ariesmemstorage "github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/internal/pkg/tlsutil"
	"github.com/broca-activitypub/broca/pkg/activitypub/client"
	"github.com/broca-activitypub/broca/pkg/activitypub/client/transport"
	"github.com/broca-activitypub/broca/pkg/activitypub/collections"
	"github.com/broca-activitypub/broca/pkg/activitypub/httpsig"
	aphandler "github.com/broca-activitypub/broca/pkg/activitypub/resthandler"
	apservice "github.com/broca-activitypub/broca/pkg/activitypub/service"
	"github.com/broca-activitypub/broca/pkg/activitypub/service/attachment"
	"github.com/broca-activitypub/broca/pkg/activitypub/service/delivery"
	apspi "github.com/broca-activitypub/broca/pkg/activitypub/service/spi"
	apariesstore "github.com/broca-activitypub/broca/pkg/activitypub/store/ariesstore"
	apmemstore "github.com/broca-activitypub/broca/pkg/activitypub/store/memstore"
	activitypubspi "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/healthcheck"
	"github.com/broca-activitypub/broca/pkg/httpserver"
	"github.com/broca-activitypub/broca/pkg/httpserver/auth"
	"github.com/broca-activitypub/broca/pkg/httpserver/maintenance"
	"github.com/broca-activitypub/broca/pkg/identity"
	"github.com/broca-activitypub/broca/pkg/observability/loglevels"
	"github.com/broca-activitypub/broca/pkg/observability/metrics"
	metricsnoop "github.com/broca-activitypub/broca/pkg/observability/metrics/noop"
	metricsprometheus "github.com/broca-activitypub/broca/pkg/observability/metrics/prometheus"
	"github.com/broca-activitypub/broca/pkg/observability/tracing"
	"github.com/broca-activitypub/broca/pkg/pubsub/amqp"
	"github.com/broca-activitypub/broca/pkg/pubsub/mempubsub"
	"github.com/broca-activitypub/broca/pkg/restapi/common"
	"github.com/broca-activitypub/broca/pkg/store"
	"github.com/broca-activitypub/broca/pkg/store/blob"
	"github.com/broca-activitypub/broca/pkg/store/expiry"
	"github.com/broca-activitypub/broca/pkg/store/wrapper"
	"github.com/broca-activitypub/broca/pkg/taskmgr"
)

const (
	defaultPageSize    = 20
	defaultMaxPageSize = 100

	defaultServerIdleTimeout       = 20 * time.Second
	defaultServerReadHeaderTimeout = 5 * time.Second

	taskMgrCheckInterval = 10 * time.Second
	expiryCheckInterval  = time.Minute

	outboundRequestTimeout = time.Minute

	stopTimeout = 10 * time.Second

	coordinationStoreName = "coordination"

	metricsPath = "/metrics"
)

var logger = log.New("broca-server")

type pubSub interface {
	apservice.PubSub

	IsConnected() bool
}

type signatureVerifier interface {
	VerifyRequest(req *http.Request) (bool, *url.URL, error)
}

// HTTPServer runs the HTTP server along with the ActivityPub service and its
// supporting components, and shuts everything down on an interrupt signal.
type HTTPServer struct {
	activityPubService apspi.ServiceLifecycle
	taskMgr            *taskmgr.Manager
	pubSub             pubSub
	tracingProvider    tracing.Provider
	metricsProvider    metrics.Provider
}

// Start starts the HTTP server and blocks until an interrupt signal is received.
func (s *HTTPServer) Start(srv *httpserver.Server) error {
	s.taskMgr.Start()
	s.activityPubService.Start()

	if err := srv.Start(); err != nil {
		return err
	}

	logger.Info("Started Broca REST service")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Wait for interrupt
	<-interrupt

	logger.Info("Shutting down ...")

	s.activityPubService.Stop()
	s.taskMgr.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Warn("Error stopping HTTP server", log.WithError(err))
	}

	if err := s.pubSub.Close(); err != nil {
		logger.Warn("Error closing publisher/subscriber", log.WithError(err))
	}

	if err := s.metricsProvider.Destroy(); err != nil {
		logger.Warn("Error destroying metrics provider", log.WithError(err))
	}

	s.tracingProvider.Stop()

	logger.Info("Shutdown complete")

	return nil
}

// GetStartCmd returns the Cobra start command.
func GetStartCmd() *cobra.Command {
	startCmd := createStartCmd()

	createFlags(startCmd)

	return startCmd
}

func createStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start broca-server",
		Long:  "Start broca-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getBrocaParameters(cmd)
			if err != nil {
				return err
			}

			return startBrocaServices(parameters)
		},
	}
}

// nolint: funlen
func startBrocaServices(parameters *brocaParameters) error {
	if parameters.logLevel != "" {
		setLogLevels(logger, parameters.logLevel)
	}

	endpointURL, err := url.Parse(parameters.baseURL + parameters.routePrefix)
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}

	tracingProvider, err := tracing.Initialize(parameters.tracingParams.provider, parameters.serverName,
		parameters.tracingParams.collectorURL)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}

	tracingProvider.Start()

	metricsProvider := newMetricsProvider(parameters)

	if err := metricsProvider.Create(); err != nil {
		return fmt.Errorf("create metrics provider: %w", err)
	}

	mp := metricsProvider.Metrics()

	storageProvider, err := createStorageProvider(parameters, mp)
	if err != nil {
		return err
	}

	pubSub := createPubSub(parameters)

	coordinationStore, err := store.Open(storageProvider, coordinationStoreName)
	if err != nil {
		return fmt.Errorf("open coordination store: %w", err)
	}

	taskMgr := taskmgr.New(coordinationStore, taskMgrCheckInterval)

	expiryService := expiry.NewService(taskMgr, expiryCheckInterval)

	apStore, err := createActivityPubStore(parameters, storageProvider)
	if err != nil {
		return err
	}

	keyStore, err := identity.NewKeyStore(storageProvider)
	if err != nil {
		return fmt.Errorf("create key store: %w", err)
	}

	identityProvider := identity.New(
		&identity.Config{
			ServiceEndpointURL: endpointURL,
			SystemUsername:     parameters.systemActorUsername,
		},
		apStore, keyStore,
	)

	if err := identityProvider.Init(); err != nil {
		return fmt.Errorf("initialize identity provider: %w", err)
	}

	httpClient, err := newHTTPClient(parameters)
	if err != nil {
		return err
	}

	t := transport.New(httpClient, identityProvider,
		httpsig.NewSigner(httpsig.DefaultGetSignerConfig()),
		httpsig.NewSigner(httpsig.DefaultPostSignerConfig()),
	)

	apClient := client.New(
		client.Config{
			KeyCacheExpiration: parameters.publicKeyCacheTTL,
		},
		t,
	)

	var sigVerifier signatureVerifier

	if parameters.requireHTTPSignatures {
		sigVerifier = httpsig.NewVerifier(apClient)
	} else {
		logger.Warn("HTTP signature verification is disabled.")

		sigVerifier = &noOpVerifier{}
	}

	collectionDefStore, err := collections.NewStore(storageProvider)
	if err != nil {
		return fmt.Errorf("create collection definition store: %w", err)
	}

	collectionMgr := collections.NewManager(collectionDefStore, apStore)

	blobStore, err := blob.New(storageProvider)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	attachmentProcessor := attachment.New(
		&attachment.Config{ServiceEndpointURL: endpointURL},
		t, blobStore,
	)

	// Administrative operations are only authorized when explicitly enabled.
	var adminToken string

	var authorizedAdminActors []string

	if parameters.enableAdminOperations {
		adminToken = parameters.adminAPIToken
		authorizedAdminActors = parameters.authorizedAdminActors
	}

	activityPubService, err := apservice.New(
		&apservice.Config{
			ServiceName:           parameters.serverName,
			ServiceEndpoint:       parameters.routePrefix + aphandler.InboxPath,
			ServiceEndpointURL:    endpointURL,
			SystemUsername:        parameters.systemActorUsername,
			AdminToken:            adminToken,
			AuthorizedAdminActors: authorizedAdminActors,
			RequireHTTPSignatures: parameters.requireHTTPSignatures,
			AutoAcceptFollowers:   parameters.autoAcceptFollowers,
			DisableDelivery:       !parameters.enableActivityDelivery,
			Delivery: &delivery.Config{
				ProcessingInterval: parameters.delivery.processingInterval,
				BatchSize:          parameters.delivery.batchSize,
				Concurrency:        parameters.delivery.concurrency,
				MaxAttempts:        parameters.delivery.maxAttempts,
				Retention:          parameters.delivery.retention,
			},
		},
		&apservice.Providers{
			ActivityStore:   apStore,
			StorageProvider: storageProvider,
			PubSub:          pubSub,
			Transport:       t,
			APClient:        apClient,
			Collections:     collectionMgr,
			Identity:        identityProvider,
			Attachments:     attachmentProcessor,
			SigVerifier:     sigVerifier,
			TaskMgr:         taskMgr,
			ExpiryService:   expiryService,
			Metrics:         mp,
		},
	)
	if err != nil {
		return fmt.Errorf("create ActivityPub service: %w", err)
	}

	authCfg := auth.Config{
		AuthTokensDef: parameters.authTokenDefinitions,
		AuthTokens:    parameters.authTokens,
	}

	apEndpointCfg := &aphandler.Config{
		BasePath:           parameters.routePrefix,
		ServiceEndpointURL: endpointURL,
		PageSize:           defaultPageSize,
		MaxPageSize:        defaultMaxPageSize,
		AdminToken:         parameters.adminAPIToken,
		AuthTokensDef:      parameters.authTokenDefinitions,
		AuthTokens:         parameters.authTokens,
	}

	inboxHTTPHandler := common.HTTPHandler(activityPubService.InboxHTTPHandler())

	postOutboxHandler := common.HTTPHandler(
		aphandler.NewPostOutbox(apEndpointCfg, activityPubService.Outbox(), apStore, sigVerifier))

	if parameters.maintenanceMode {
		logger.Warn("Server is running in maintenance mode: write endpoints are disabled.")

		inboxHTTPHandler = maintenance.NewMaintenanceWrapper(inboxHTTPHandler)
		postOutboxHandler = maintenance.NewMaintenanceWrapper(postOutboxHandler)
	}

	handlers := []common.HTTPHandler{
		inboxHTTPHandler,
		postOutboxHandler,
		aphandler.NewActorProfile(apEndpointCfg, apStore, collectionMgr, identityProvider,
			identityProvider.SystemActorIRI()),
		aphandler.NewInbox(apEndpointCfg, apStore, sigVerifier),
		aphandler.NewReadOutbox(apEndpointCfg, apStore),
		aphandler.NewFollowers(apEndpointCfg, apStore),
		aphandler.NewFollowing(apEndpointCfg, apStore),
		aphandler.NewLiked(apEndpointCfg, apStore),
		aphandler.NewShared(apEndpointCfg, apStore),
		aphandler.NewObject(apEndpointCfg, apStore),
		aphandler.NewReplies(apEndpointCfg, apStore),
		aphandler.NewLikes(apEndpointCfg, apStore),
		aphandler.NewShares(apEndpointCfg, apStore),
		aphandler.NewCollectionCatalog(apEndpointCfg, apStore, collectionMgr),
		aphandler.NewCollection(apEndpointCfg, apStore, collectionMgr),
		aphandler.NewMedia(apEndpointCfg, apStore, blobStore),
		aphandler.NewWebFinger(apEndpointCfg, apStore),
		healthcheck.NewHandler(pubSub, storageProvider, parameters.maintenanceMode),
		auth.NewHandlerWrapper(authCfg, loglevels.NewWriteHandler()),
		loglevels.NewReadHandler(),
	}

	httpServer := httpserver.New(
		parameters.hostURL,
		parameters.tlsParams.serveCertPath,
		parameters.tlsParams.serveKeyPath,
		defaultServerIdleTimeout,
		defaultServerReadHeaderTimeout,
		handlers...,
	)

	srv := &HTTPServer{
		activityPubService: activityPubService,
		taskMgr:            taskMgr,
		pubSub:             pubSub,
		tracingProvider:    tracingProvider,
		metricsProvider:    metricsProvider,
	}

	return srv.Start(httpServer)
}

func createStorageProvider(parameters *brocaParameters, mp metrics.Metrics) (*wrapper.ProviderWrapper, error) {
	dbParams := parameters.dbParameters

	switch {
	case strings.EqualFold(dbParams.databaseType, databaseTypeMemOption):
		return wrapper.NewProvider(ariesmemstorage.NewProvider(), databaseTypeMemOption, mp), nil
	case strings.EqualFold(dbParams.databaseType, databaseTypeMongoDBOption):
		mongoDBProvider, err := ariesmongodbstorage.NewProvider(dbParams.databaseURL,
			ariesmongodbstorage.WithDBPrefix(dbParams.databasePrefix))
		if err != nil {
			return nil, fmt.Errorf("create MongoDB storage provider: %w", err)
		}

		return wrapper.NewProvider(mongoDBProvider, databaseTypeMongoDBOption, mp), nil
	default:
		return nil, fmt.Errorf("%s is not set to a valid type. Run start --help to see the available options",
			databaseTypeFlagName)
	}
}

func createActivityPubStore(parameters *brocaParameters,
	provider *wrapper.ProviderWrapper) (activitypubspi.Store, error) {
	if strings.EqualFold(parameters.dbParameters.databaseType, databaseTypeMongoDBOption) {
		apStore, err := apariesstore.New(parameters.serverName, provider, true)
		if err != nil {
			return nil, fmt.Errorf("create ActivityPub store: %w", err)
		}

		return apStore, nil
	}

	return apmemstore.New(parameters.serverName), nil
}

func createPubSub(parameters *brocaParameters) pubSub {
	if parameters.mqURL != "" {
		logger.Info("Creating AMQP publisher/subscriber", logfields.WithAddress(parameters.mqURL))

		return amqp.New(amqp.Config{URI: parameters.mqURL})
	}

	return mempubsub.New(mempubsub.DefaultConfig())
}

func newHTTPClient(parameters *brocaParameters) (*http.Client, error) {
	rootCAs, err := tlsutil.GetCertPool(parameters.tlsParams.systemCertPool, parameters.tlsParams.caCerts)
	if err != nil {
		return nil, fmt.Errorf("create cert pool: %w", err)
	}

	return &http.Client{
		Timeout: outboundRequestTimeout,
		Transport: &http.Transport{
			ForceAttemptHTTP2: true,
			TLSClientConfig: &tls.Config{
				RootCAs:    rootCAs,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

func newMetricsProvider(parameters *brocaParameters) metrics.Provider {
	if parameters.metricsListenAddress == "" {
		return metricsnoop.NewProvider()
	}

	metricsHTTPServer := httpserver.New(
		parameters.metricsListenAddress, "", "",
		defaultServerIdleTimeout,
		defaultServerReadHeaderTimeout,
		newMetricsHandler(),
	)

	return metricsprometheus.NewPrometheusProvider(metricsHTTPServer)
}

type metricsHandler struct {
	handler http.Handler
}

func newMetricsHandler() *metricsHandler {
	return &metricsHandler{handler: promhttp.Handler()}
}

func (h *metricsHandler) Method() string {
	return http.MethodGet
}

func (h *metricsHandler) Path() string {
	return metricsPath
}

func (h *metricsHandler) Handler() common.HTTPRequestHandler {
	return func(w http.ResponseWriter, r *http.Request) {
		h.handler.ServeHTTP(w, r)
	}
}

type noOpVerifier struct{}

func (v *noOpVerifier) VerifyRequest(*http.Request) (bool, *url.URL, error) {
	return true, nil, nil
}
