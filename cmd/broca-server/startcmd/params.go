/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/broca-activitypub/broca/internal/pkg/cmdutil"
	"github.com/broca-activitypub/broca/pkg/httpserver/auth"
)

const (
	defaultSystemActorUsername = "sys"
	defaultServerName          = "broca"

	defaultPublicKeyCacheTTL          = time.Hour
	defaultDeliveryProcessingInterval = 5 * time.Second
	defaultDeliveryBatchSize          = 100
	defaultDeliveryConcurrency        = 10
	defaultDeliveryMaxAttempts        = 5
	defaultDeliveryRetention          = 168 * time.Hour

	commonEnvVarUsageText = "Alternatively, this can be set with the following environment variable: "

	hostURLFlagName      = "host-url"
	hostURLFlagShorthand = "u"
	hostURLFlagUsage     = "Host and port to run the broca-server instance on. Format: HostName:Port. " +
		commonEnvVarUsageText + hostURLEnvKey
	hostURLEnvKey = "BROCA_HOST_URL"

	baseURLFlagName      = "base-url"
	baseURLFlagShorthand = "e"
	baseURLFlagUsage     = "External base URL that clients use to invoke services. This URL is used to " +
		"generate the IDs of actors, activities, and objects and should be resolvable by remote servers. " +
		"Format: scheme://HostName[:Port]. " + commonEnvVarUsageText + baseURLEnvKey
	baseURLEnvKey = "BROCA_BASE_URL"

	routePrefixFlagName  = "route-prefix"
	routePrefixFlagUsage = "An optional prefix under which all ActivityPub endpoints are registered, " +
		"e.g. /ap. " + commonEnvVarUsageText + routePrefixEnvKey
	routePrefixEnvKey = "BROCA_ROUTE_PREFIX"

	serverNameFlagName  = "server-name"
	serverNameFlagUsage = "The name of this server instance (used for logging, metrics, and queue naming). " +
		commonEnvVarUsageText + serverNameEnvKey
	serverNameEnvKey = "BROCA_SERVER_NAME"

	primaryDomainFlagName  = "primary-domain"
	primaryDomainFlagUsage = "The primary domain of this server. Used to derive the base URL when " +
		"--base-url is not set. " + commonEnvVarUsageText + primaryDomainEnvKey
	primaryDomainEnvKey = "BROCA_PRIMARY_DOMAIN"

	systemActorUsernameFlagName  = "system-actor-username"
	systemActorUsernameFlagUsage = "The username of the system (instance-level) actor. Defaults to 'sys'. " +
		commonEnvVarUsageText + systemActorUsernameEnvKey
	systemActorUsernameEnvKey = "BROCA_SYSTEM_ACTOR_USERNAME"

	enableActivityDeliveryFlagName  = "enable-activity-delivery"
	enableActivityDeliveryFlagUsage = "Enables delivery of activities to remote inboxes. Defaults to true. " +
		"When false, activities posted to an outbox are stored and applied locally only. " +
		commonEnvVarUsageText + enableActivityDeliveryEnvKey
	enableActivityDeliveryEnvKey = "BROCA_ENABLE_ACTIVITY_DELIVERY"

	requireHTTPSignaturesFlagName  = "require-http-signatures"
	requireHTTPSignaturesFlagUsage = "Requires a valid HTTP signature on inbox posts and on reads of " +
		"non-public resources. Defaults to true. " + commonEnvVarUsageText + requireHTTPSignaturesEnvKey
	requireHTTPSignaturesEnvKey = "BROCA_REQUIRE_HTTP_SIGNATURES"

	enableAdminOperationsFlagName  = "enable-admin-operations"
	enableAdminOperationsFlagUsage = "Enables administrative operations (actor and collection management) " +
		"on the system actor's inbox. Defaults to false. " + commonEnvVarUsageText + enableAdminOperationsEnvKey
	enableAdminOperationsEnvKey = "BROCA_ENABLE_ADMIN_OPERATIONS"

	adminAPITokenFlagName  = "admin-api-token" //nolint: gosec
	adminAPITokenFlagUsage = "The administrative bearer token. Requests that carry it have unrestricted " +
		"access. " + commonEnvVarUsageText + adminAPITokenEnvKey
	adminAPITokenEnvKey = "BROCA_ADMIN_API_TOKEN" //nolint: gosec

	authorizedAdminActorsFlagName  = "authorized-admin-actors"
	authorizedAdminActorsFlagUsage = "The IRIs of remote actors whose signed posts to the system actor's " +
		"inbox are treated as administrative. " + commonEnvVarUsageText + authorizedAdminActorsEnvKey
	authorizedAdminActorsEnvKey = "BROCA_AUTHORIZED_ADMIN_ACTORS"

	autoAcceptFollowersFlagName  = "auto-accept-followers"
	autoAcceptFollowersFlagUsage = "Automatically posts an Accept activity in response to an authorized " +
		"Follow request. Defaults to false. " + commonEnvVarUsageText + autoAcceptFollowersEnvKey
	autoAcceptFollowersEnvKey = "BROCA_AUTO_ACCEPT_FOLLOWERS"

	publicKeyCacheTTLFlagName  = "public-key-cache-ttl"
	publicKeyCacheTTLFlagUsage = "The expiration time of remote actor public keys in the cache. " +
		"Defaults to 1h. " + commonEnvVarUsageText + publicKeyCacheTTLEnvKey
	publicKeyCacheTTLEnvKey = "BROCA_PUBLIC_KEY_CACHE_TTL"

	deliveryProcessingIntervalFlagName  = "delivery-processing-interval"
	deliveryProcessingIntervalFlagUsage = "The interval at which the delivery queue is swept for due " +
		"items. Defaults to 5s. " + commonEnvVarUsageText + deliveryProcessingIntervalEnvKey
	deliveryProcessingIntervalEnvKey = "BROCA_DELIVERY_PROCESSING_INTERVAL"

	deliveryBatchSizeFlagName  = "delivery-batch-size"
	deliveryBatchSizeFlagUsage = "The maximum number of queue items claimed in one delivery sweep. " +
		"Defaults to 100. " + commonEnvVarUsageText + deliveryBatchSizeEnvKey
	deliveryBatchSizeEnvKey = "BROCA_DELIVERY_BATCH_SIZE"

	deliveryConcurrencyFlagName  = "delivery-concurrency"
	deliveryConcurrencyFlagUsage = "The number of concurrent deliveries within one sweep. Defaults to 10. " +
		commonEnvVarUsageText + deliveryConcurrencyEnvKey
	deliveryConcurrencyEnvKey = "BROCA_DELIVERY_CONCURRENCY"

	deliveryMaxAttemptsFlagName  = "delivery-max-attempts"
	deliveryMaxAttemptsFlagUsage = "The maximum number of delivery attempts before a queue item is " +
		"marked dead. Defaults to 5. " + commonEnvVarUsageText + deliveryMaxAttemptsEnvKey
	deliveryMaxAttemptsEnvKey = "BROCA_DELIVERY_MAX_ATTEMPTS"

	deliveryRetentionFlagName  = "delivery-retention"
	deliveryRetentionFlagUsage = "How long delivered and dead queue items are retained before they are " +
		"swept. Defaults to 168h. " + commonEnvVarUsageText + deliveryRetentionEnvKey
	deliveryRetentionEnvKey = "BROCA_DELIVERY_RETENTION"

	tlsCertificateFlagName      = "tls-certificate"
	tlsCertificateFlagShorthand = "y"
	tlsCertificateFlagUsage     = "TLS certificate for the broca server. " +
		commonEnvVarUsageText + tlsCertificateEnvKey
	tlsCertificateEnvKey = "BROCA_TLS_CERTIFICATE"

	tlsKeyFlagName      = "tls-key"
	tlsKeyFlagShorthand = "x"
	tlsKeyFlagUsage     = "TLS key for the broca server. " + commonEnvVarUsageText + tlsKeyEnvKey
	tlsKeyEnvKey        = "BROCA_TLS_KEY"

	tlsSystemCertPoolFlagName  = "tls-systemcertpool"
	tlsSystemCertPoolFlagUsage = "Use system certificate pool for outbound requests. " +
		"Possible values [true] [false]. Defaults to false. " + commonEnvVarUsageText + tlsSystemCertPoolEnvKey
	tlsSystemCertPoolEnvKey = "BROCA_TLS_SYSTEMCERTPOOL"

	tlsCACertsFlagName  = "tls-cacerts"
	tlsCACertsFlagUsage = "Comma-separated list of CA certificate paths for outbound requests. " +
		commonEnvVarUsageText + tlsCACertsEnvKey
	tlsCACertsEnvKey = "BROCA_TLS_CACERTS"

	databaseTypeFlagName      = "database-type"
	databaseTypeFlagShorthand = "t"
	databaseTypeFlagUsage     = "The type of database to use. Supported options: mem, mongodb. " +
		commonEnvVarUsageText + databaseTypeEnvKey
	databaseTypeEnvKey = "BROCA_DATABASE_TYPE"

	databaseURLFlagName      = "database-url"
	databaseURLFlagShorthand = "v"
	databaseURLFlagUsage     = "The URL (or connection string) of the database. Not needed if using " +
		"memstore. " + commonEnvVarUsageText + databaseURLEnvKey
	databaseURLEnvKey = "BROCA_DATABASE_URL"

	databasePrefixFlagName  = "database-prefix"
	databasePrefixFlagUsage = "An optional prefix to be used when creating and retrieving underlying " +
		"databases. " + commonEnvVarUsageText + databasePrefixEnvKey
	databasePrefixEnvKey = "BROCA_DATABASE_PREFIX"

	mqURLFlagName      = "mq-url"
	mqURLFlagShorthand = "q"
	mqURLFlagUsage     = "The URL of the AMQP message broker. If not specified then an in-process " +
		"publisher/subscriber is used. " + commonEnvVarUsageText + mqURLEnvKey
	mqURLEnvKey = "BROCA_MQ_URL"

	inboxReadTokenFlagName  = "inbox-read-token" //nolint: gosec
	inboxReadTokenFlagUsage = "A bearer token that is required in order to read actor inboxes. If not " +
		"specified then inbox reads are gated by the admin token and HTTP signatures only. " +
		commonEnvVarUsageText + inboxReadTokenEnvKey
	inboxReadTokenEnvKey = "BROCA_INBOX_READ_TOKEN" //nolint: gosec

	authTokensDefFlagName  = "auth-tokens-def" //nolint: gosec
	authTokensDefFlagUsage = "Authorization token definitions of the format " +
		"<endpoint-expression>|<read-token-ids>|<write-token-ids>, where token IDs are separated by '&'. " +
		"Example: /ap/users/.*/inbox|admin&read|admin. " + commonEnvVarUsageText + authTokensDefEnvKey
	authTokensDefEnvKey = "BROCA_AUTH_TOKENS_DEF" //nolint: gosec

	authTokensFlagName  = "auth-tokens" //nolint: gosec
	authTokensFlagUsage = "Authorization tokens of the format <token-id>=<token-value>. " +
		commonEnvVarUsageText + authTokensEnvKey
	authTokensEnvKey = "BROCA_AUTH_TOKENS" //nolint: gosec

	tracingProviderFlagName  = "tracing-provider"
	tracingProviderFlagUsage = "The tracing provider. Supported options: NONE, JAEGER. Defaults to NONE. " +
		commonEnvVarUsageText + tracingProviderEnvKey
	tracingProviderEnvKey = "BROCA_TRACING_PROVIDER"

	tracingCollectorURLFlagName  = "tracing-collector-url"
	tracingCollectorURLFlagUsage = "The URL of the tracing collector (exporter). " +
		commonEnvVarUsageText + tracingCollectorURLEnvKey
	tracingCollectorURLEnvKey = "BROCA_TRACING_COLLECTOR_URL"

	metricsListenAddressFlagName  = "metrics-listen-address"
	metricsListenAddressFlagUsage = "The address of a dedicated listener that exposes Prometheus metrics. " +
		"If not specified then metrics are disabled. " + commonEnvVarUsageText + metricsListenAddressEnvKey
	metricsListenAddressEnvKey = "BROCA_METRICS_LISTEN_ADDRESS"

	maintenanceModeFlagName  = "maintenance-mode"
	maintenanceModeFlagUsage = "Starts the server in maintenance mode: write endpoints return 503 " +
		"and the health check reports 'Maintenance'. Defaults to false. " +
		commonEnvVarUsageText + maintenanceModeEnvKey
	maintenanceModeEnvKey = "BROCA_MAINTENANCE_MODE"

	databaseTypeMemOption     = "mem"
	databaseTypeMongoDBOption = "mongodb"

	inboxReadTokenID = "inbox-read" //nolint: gosec
)

type brocaParameters struct {
	hostURL                string
	baseURL                string
	routePrefix            string
	serverName             string
	primaryDomain          string
	systemActorUsername    string
	enableActivityDelivery bool
	requireHTTPSignatures  bool
	enableAdminOperations  bool
	adminAPIToken          string
	authorizedAdminActors  []string
	autoAcceptFollowers    bool
	publicKeyCacheTTL      time.Duration
	delivery               *deliveryParameters
	tlsParams              *tlsParameters
	dbParameters           *dbParameters
	mqURL                  string
	authTokenDefinitions   []*auth.TokenDef
	authTokens             map[string]string
	logLevel               string
	tracingParams          *tracingParameters
	metricsListenAddress   string
	maintenanceMode        bool
}

type deliveryParameters struct {
	processingInterval time.Duration
	batchSize          int
	concurrency        int
	maxAttempts        int
	retention          time.Duration
}

type tlsParameters struct {
	serveCertPath  string
	serveKeyPath   string
	systemCertPool bool
	caCerts        []string
}

type dbParameters struct {
	databaseType   string
	databaseURL    string
	databasePrefix string
}

type tracingParameters struct {
	provider     string
	collectorURL string
}

// nolint: gocyclo,funlen
func getBrocaParameters(cmd *cobra.Command) (*brocaParameters, error) {
	hostURL, err := cmdutil.GetUserSetVarFromString(cmd, hostURLFlagName, hostURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	baseURL := cmdutil.GetUserSetOptionalVarFromString(cmd, baseURLFlagName, baseURLEnvKey)

	routePrefix := cmdutil.GetUserSetOptionalVarFromString(cmd, routePrefixFlagName, routePrefixEnvKey)

	if routePrefix != "" && !strings.HasPrefix(routePrefix, "/") {
		return nil, fmt.Errorf("%s must start with '/'", routePrefixFlagName)
	}

	serverName := cmdutil.GetUserSetOptionalVarFromString(cmd, serverNameFlagName, serverNameEnvKey)
	if serverName == "" {
		serverName = defaultServerName
	}

	primaryDomain := cmdutil.GetUserSetOptionalVarFromString(cmd, primaryDomainFlagName, primaryDomainEnvKey)

	if baseURL == "" {
		if primaryDomain == "" {
			return nil, fmt.Errorf("either %s or %s must be specified", baseURLFlagName, primaryDomainFlagName)
		}

		baseURL = "https://" + primaryDomain
	}

	systemActorUsername := cmdutil.GetUserSetOptionalVarFromString(cmd, systemActorUsernameFlagName,
		systemActorUsernameEnvKey)
	if systemActorUsername == "" {
		systemActorUsername = defaultSystemActorUsername
	}

	enableActivityDelivery, err := cmdutil.GetBool(cmd, enableActivityDeliveryFlagName,
		enableActivityDeliveryEnvKey, true)
	if err != nil {
		return nil, err
	}

	requireHTTPSignatures, err := cmdutil.GetBool(cmd, requireHTTPSignaturesFlagName,
		requireHTTPSignaturesEnvKey, true)
	if err != nil {
		return nil, err
	}

	enableAdminOperations, err := cmdutil.GetBool(cmd, enableAdminOperationsFlagName,
		enableAdminOperationsEnvKey, false)
	if err != nil {
		return nil, err
	}

	adminAPIToken := cmdutil.GetUserSetOptionalVarFromString(cmd, adminAPITokenFlagName, adminAPITokenEnvKey)

	if enableAdminOperations && adminAPIToken == "" {
		return nil, fmt.Errorf("%s is required when %s is true", adminAPITokenFlagName,
			enableAdminOperationsFlagName)
	}

	authorizedAdminActors := cmdutil.GetUserSetOptionalVarFromArrayString(cmd, authorizedAdminActorsFlagName,
		authorizedAdminActorsEnvKey)

	autoAcceptFollowers, err := cmdutil.GetBool(cmd, autoAcceptFollowersFlagName, autoAcceptFollowersEnvKey, false)
	if err != nil {
		return nil, err
	}

	publicKeyCacheTTL, err := cmdutil.GetDuration(cmd, publicKeyCacheTTLFlagName, publicKeyCacheTTLEnvKey,
		defaultPublicKeyCacheTTL)
	if err != nil {
		return nil, err
	}

	deliveryParams, err := getDeliveryParameters(cmd)
	if err != nil {
		return nil, err
	}

	tlsParams, err := getTLSParameters(cmd)
	if err != nil {
		return nil, err
	}

	dbParams, err := getDBParameters(cmd)
	if err != nil {
		return nil, err
	}

	mqURL := cmdutil.GetUserSetOptionalVarFromString(cmd, mqURLFlagName, mqURLEnvKey)

	authTokenDefs, authTokens, err := getAuthTokenParameters(cmd, routePrefix)
	if err != nil {
		return nil, err
	}

	logLevel := cmdutil.GetUserSetOptionalVarFromString(cmd, LogLevelFlagName, LogLevelEnvKey)

	tracingParams := &tracingParameters{
		provider:     cmdutil.GetUserSetOptionalVarFromString(cmd, tracingProviderFlagName, tracingProviderEnvKey),
		collectorURL: cmdutil.GetUserSetOptionalVarFromString(cmd, tracingCollectorURLFlagName, tracingCollectorURLEnvKey),
	}

	metricsListenAddress := cmdutil.GetUserSetOptionalVarFromString(cmd, metricsListenAddressFlagName,
		metricsListenAddressEnvKey)

	maintenanceMode, err := cmdutil.GetBool(cmd, maintenanceModeFlagName, maintenanceModeEnvKey, false)
	if err != nil {
		return nil, err
	}

	return &brocaParameters{
		hostURL:                hostURL,
		baseURL:                strings.TrimSuffix(baseURL, "/"),
		routePrefix:            routePrefix,
		serverName:             serverName,
		primaryDomain:          primaryDomain,
		systemActorUsername:    systemActorUsername,
		enableActivityDelivery: enableActivityDelivery,
		requireHTTPSignatures:  requireHTTPSignatures,
		enableAdminOperations:  enableAdminOperations,
		adminAPIToken:          adminAPIToken,
		authorizedAdminActors:  authorizedAdminActors,
		autoAcceptFollowers:    autoAcceptFollowers,
		publicKeyCacheTTL:      publicKeyCacheTTL,
		delivery:               deliveryParams,
		tlsParams:              tlsParams,
		dbParameters:           dbParams,
		mqURL:                  mqURL,
		authTokenDefinitions:   authTokenDefs,
		authTokens:             authTokens,
		logLevel:               logLevel,
		tracingParams:          tracingParams,
		metricsListenAddress:   metricsListenAddress,
		maintenanceMode:        maintenanceMode,
	}, nil
}

func getDeliveryParameters(cmd *cobra.Command) (*deliveryParameters, error) {
	processingInterval, err := cmdutil.GetDuration(cmd, deliveryProcessingIntervalFlagName,
		deliveryProcessingIntervalEnvKey, defaultDeliveryProcessingInterval)
	if err != nil {
		return nil, err
	}

	batchSize, err := cmdutil.GetInt(cmd, deliveryBatchSizeFlagName, deliveryBatchSizeEnvKey,
		defaultDeliveryBatchSize)
	if err != nil {
		return nil, err
	}

	concurrency, err := cmdutil.GetInt(cmd, deliveryConcurrencyFlagName, deliveryConcurrencyEnvKey,
		defaultDeliveryConcurrency)
	if err != nil {
		return nil, err
	}

	maxAttempts, err := cmdutil.GetInt(cmd, deliveryMaxAttemptsFlagName, deliveryMaxAttemptsEnvKey,
		defaultDeliveryMaxAttempts)
	if err != nil {
		return nil, err
	}

	retention, err := cmdutil.GetDuration(cmd, deliveryRetentionFlagName, deliveryRetentionEnvKey,
		defaultDeliveryRetention)
	if err != nil {
		return nil, err
	}

	return &deliveryParameters{
		processingInterval: processingInterval,
		batchSize:          batchSize,
		concurrency:        concurrency,
		maxAttempts:        maxAttempts,
		retention:          retention,
	}, nil
}

func getTLSParameters(cmd *cobra.Command) (*tlsParameters, error) {
	tlsCertificate := cmdutil.GetUserSetOptionalVarFromString(cmd, tlsCertificateFlagName, tlsCertificateEnvKey)

	tlsKey := cmdutil.GetUserSetOptionalVarFromString(cmd, tlsKeyFlagName, tlsKeyEnvKey)

	tlsSystemCertPool, err := cmdutil.GetBool(cmd, tlsSystemCertPoolFlagName, tlsSystemCertPoolEnvKey, false)
	if err != nil {
		return nil, err
	}

	tlsCACerts := cmdutil.GetUserSetOptionalVarFromArrayString(cmd, tlsCACertsFlagName, tlsCACertsEnvKey)

	return &tlsParameters{
		serveCertPath:  tlsCertificate,
		serveKeyPath:   tlsKey,
		systemCertPool: tlsSystemCertPool,
		caCerts:        tlsCACerts,
	}, nil
}

func getDBParameters(cmd *cobra.Command) (*dbParameters, error) {
	databaseType, err := cmdutil.GetUserSetVarFromString(cmd, databaseTypeFlagName, databaseTypeEnvKey, false)
	if err != nil {
		return nil, err
	}

	databaseURL := cmdutil.GetUserSetOptionalVarFromString(cmd, databaseURLFlagName, databaseURLEnvKey)

	databasePrefix := cmdutil.GetUserSetOptionalVarFromString(cmd, databasePrefixFlagName, databasePrefixEnvKey)

	return &dbParameters{
		databaseType:   databaseType,
		databaseURL:    databaseURL,
		databasePrefix: databasePrefix,
	}, nil
}

// getAuthTokenParameters resolves the bearer token definitions that gate read/write access
// per endpoint expression, plus the token ID -> value mapping. The inbox read token, if
// specified, is translated into a definition that covers all inbox endpoints.
func getAuthTokenParameters(cmd *cobra.Command, routePrefix string) ([]*auth.TokenDef, map[string]string, error) {
	authTokenDefsStr := cmdutil.GetUserSetOptionalVarFromArrayString(cmd, authTokensDefFlagName, authTokensDefEnvKey)

	authTokenDefs, err := parseAuthTokenDefinitions(authTokenDefsStr)
	if err != nil {
		return nil, nil, err
	}

	authTokensStr := cmdutil.GetUserSetOptionalVarFromArrayString(cmd, authTokensFlagName, authTokensEnvKey)

	authTokens := make(map[string]string)

	for _, keyVal := range authTokensStr {
		parts := strings.SplitN(keyVal, "=", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("invalid auth token string [%s]: expecting <id>=<value>", keyVal)
		}

		authTokens[parts[0]] = parts[1]
	}

	inboxReadToken := cmdutil.GetUserSetOptionalVarFromString(cmd, inboxReadTokenFlagName, inboxReadTokenEnvKey)

	if inboxReadToken != "" {
		authTokenDefs = append(authTokenDefs, &auth.TokenDef{
			EndpointExpression: routePrefix + "/users/.*/inbox",
			ReadTokens:         []string{inboxReadTokenID},
		})

		authTokens[inboxReadTokenID] = inboxReadToken
	}

	return authTokenDefs, authTokens, nil
}

func parseAuthTokenDefinitions(defs []string) ([]*auth.TokenDef, error) {
	const numParts = 3

	var tokenDefs []*auth.TokenDef

	for _, def := range defs {
		parts := strings.Split(def, "|")
		if len(parts) < 1 || len(parts) > numParts {
			return nil, fmt.Errorf("invalid auth token definition [%s]: expecting "+
				"<endpoint-expression>|<read-token-ids>|<write-token-ids>", def)
		}

		var readTokens, writeTokens []string

		if len(parts) > 1 {
			readTokens = filterEmptyTokens(strings.Split(parts[1], "&"))
		}

		if len(parts) > numParts-1 {
			writeTokens = filterEmptyTokens(strings.Split(parts[2], "&"))
		}

		tokenDefs = append(tokenDefs, &auth.TokenDef{
			EndpointExpression: parts[0],
			ReadTokens:         readTokens,
			WriteTokens:        writeTokens,
		})
	}

	return tokenDefs, nil
}

func filterEmptyTokens(tokens []string) []string {
	var result []string

	for _, token := range tokens {
		if token != "" {
			result = append(result, token)
		}
	}

	return result
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(hostURLFlagName, hostURLFlagShorthand, "", hostURLFlagUsage)
	startCmd.Flags().StringP(baseURLFlagName, baseURLFlagShorthand, "", baseURLFlagUsage)
	startCmd.Flags().StringP(routePrefixFlagName, "", "", routePrefixFlagUsage)
	startCmd.Flags().StringP(serverNameFlagName, "", "", serverNameFlagUsage)
	startCmd.Flags().StringP(primaryDomainFlagName, "", "", primaryDomainFlagUsage)
	startCmd.Flags().StringP(systemActorUsernameFlagName, "", "", systemActorUsernameFlagUsage)
	startCmd.Flags().StringP(enableActivityDeliveryFlagName, "", "", enableActivityDeliveryFlagUsage)
	startCmd.Flags().StringP(requireHTTPSignaturesFlagName, "", "", requireHTTPSignaturesFlagUsage)
	startCmd.Flags().StringP(enableAdminOperationsFlagName, "", "", enableAdminOperationsFlagUsage)
	startCmd.Flags().StringP(adminAPITokenFlagName, "", "", adminAPITokenFlagUsage)
	startCmd.Flags().StringArrayP(authorizedAdminActorsFlagName, "", []string{}, authorizedAdminActorsFlagUsage)
	startCmd.Flags().StringP(autoAcceptFollowersFlagName, "", "", autoAcceptFollowersFlagUsage)
	startCmd.Flags().StringP(publicKeyCacheTTLFlagName, "", "", publicKeyCacheTTLFlagUsage)
	startCmd.Flags().StringP(deliveryProcessingIntervalFlagName, "", "", deliveryProcessingIntervalFlagUsage)
	startCmd.Flags().StringP(deliveryBatchSizeFlagName, "", "", deliveryBatchSizeFlagUsage)
	startCmd.Flags().StringP(deliveryConcurrencyFlagName, "", "", deliveryConcurrencyFlagUsage)
	startCmd.Flags().StringP(deliveryMaxAttemptsFlagName, "", "", deliveryMaxAttemptsFlagUsage)
	startCmd.Flags().StringP(deliveryRetentionFlagName, "", "", deliveryRetentionFlagUsage)
	startCmd.Flags().StringP(tlsCertificateFlagName, tlsCertificateFlagShorthand, "", tlsCertificateFlagUsage)
	startCmd.Flags().StringP(tlsKeyFlagName, tlsKeyFlagShorthand, "", tlsKeyFlagUsage)
	startCmd.Flags().StringP(tlsSystemCertPoolFlagName, "", "", tlsSystemCertPoolFlagUsage)
	startCmd.Flags().StringArrayP(tlsCACertsFlagName, "", []string{}, tlsCACertsFlagUsage)
	startCmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)
	startCmd.Flags().StringP(databaseURLFlagName, databaseURLFlagShorthand, "", databaseURLFlagUsage)
	startCmd.Flags().StringP(databasePrefixFlagName, "", "", databasePrefixFlagUsage)
	startCmd.Flags().StringP(mqURLFlagName, mqURLFlagShorthand, "", mqURLFlagUsage)
	startCmd.Flags().StringP(inboxReadTokenFlagName, "", "", inboxReadTokenFlagUsage)
	startCmd.Flags().StringArrayP(authTokensDefFlagName, "", []string{}, authTokensDefFlagUsage)
	startCmd.Flags().StringArrayP(authTokensFlagName, "", []string{}, authTokensFlagUsage)
	startCmd.Flags().StringP(LogLevelFlagName, LogLevelFlagShorthand, "", LogLevelFlagUsage)
	startCmd.Flags().StringP(tracingProviderFlagName, "", "", tracingProviderFlagUsage)
	startCmd.Flags().StringP(tracingCollectorURLFlagName, "", "", tracingCollectorURLFlagUsage)
	startCmd.Flags().StringP(metricsListenAddressFlagName, "", "", metricsListenAddressFlagUsage)
	startCmd.Flags().StringP(maintenanceModeFlagName, "", "", maintenanceModeFlagUsage)
}
