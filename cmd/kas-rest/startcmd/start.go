/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/trustdataformat/kas-go/pkg/common/log"
	"github.com/trustdataformat/kas-go/pkg/controller"
	"github.com/trustdataformat/kas-go/pkg/keymaster"
	"github.com/trustdataformat/kas-go/pkg/plugin"
	"github.com/trustdataformat/kas-go/pkg/service"
)

const (
	// api host flag.
	hostFlagName      = "api-host"
	hostEnvKey        = "KAS_API_HOST"
	hostFlagShorthand = "a"
	hostFlagUsage     = "Host Name:Port." +
		" Alternatively, this can be set with the following environment variable: " + hostEnvKey

	// log level.
	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "KAS_LOG_LEVEL"
	logLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey

	// tls cert file flag.
	tlsCertFileFlagName      = "tls-cert-file"
	tlsCertFileEnvKey        = "KAS_TLS_CERT_FILE"
	tlsCertFileFlagShorthand = "c"
	tlsCertFileFlagUsage     = "tls certificate file." +
		" Alternatively, this can be set with the following environment variable: " + tlsCertFileEnvKey

	// tls key file flag.
	tlsKeyFileFlagName      = "tls-key-file"
	tlsKeyFileEnvKey        = "KAS_TLS_KEY_FILE"
	tlsKeyFileFlagShorthand = "k"
	tlsKeyFileFlagUsage     = "tls key file." +
		" Alternatively, this can be set with the following environment variable: " + tlsKeyFileEnvKey

	// attribute authority host flag.
	attrHostFlagName  = "attribute-host"
	attrHostEnvKey    = "ATTR_AUTHORITY_HOST"
	attrHostFlagUsage = "Attribute authority base URL (optional)." +
		" Alternatively, this can be set with the following environment variable: " + attrHostEnvKey

	serviceVersion = "1.5.0"
)

// Key material environment variables. The values are PEM contents, not
// paths; deployments inject them from mounted secrets.
const (
	kasPrivateKeyEnvKey   = "KAS_PRIVATE_KEY"
	kasCertificateEnvKey  = "KAS_CERTIFICATE"
	kasECPrivateKeyEnvKey = "KAS_EC_SECP256R1_PRIVATE_KEY"
	kasECCertEnvKey       = "KAS_EC_SECP256R1_CERTIFICATE"
	easCertificateEnvKey  = "EAS_CERTIFICATE"

	keycloakHostEnvKey = "KEYCLOAK_HOST"
	useKeycloakEnvKey  = "USE_KEYCLOAK"
	eoAllowListEnvKey  = "EO_ALLOW_LIST"
	eoBlockListEnvKey  = "EO_BLOCK_LIST"
	legacyIVEnvKey     = "LEGACY_NANOTDF_IV"
)

var logger = log.New("kas/kas-rest")

var errMissingHost = errors.New("host not provided")

type kasParameters struct {
	server      server
	host        string
	tlsCertFile string
	tlsKeyFile  string
	attrHost    string
}

// server interface allows mocking the HTTP server in tests.
type server interface {
	ListenAndServe(host string, router http.Handler, certFile, keyFile string) error
}

// HTTPServer is the default server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host string, router http.Handler, certFile, keyFile string) error {
	if certFile != "" && keyFile != "" {
		return http.ListenAndServeTLS(host, certFile, keyFile, router)
	}

	return http.ListenAndServe(host, router)
}

// Cmd returns the Cobra start command.
func Cmd(server server) (*cobra.Command, error) {
	startCmd := createStartCMD(server)

	createFlags(startCmd)

	return startCmd, nil
}

func createStartCMD(server server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the key access service",
		Long:  "Start the key access service rest server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel, err := getUserSetVar(cmd, logLevelFlagName, logLevelEnvKey, true)
			if err != nil {
				return err
			}

			if logLevel != "" {
				if err := setLogLevel(logLevel); err != nil {
					return err
				}
			}

			host, err := getUserSetVar(cmd, hostFlagName, hostEnvKey, false)
			if err != nil {
				return err
			}

			tlsCertFile, err := getUserSetVar(cmd, tlsCertFileFlagName, tlsCertFileEnvKey, true)
			if err != nil {
				return err
			}

			tlsKeyFile, err := getUserSetVar(cmd, tlsKeyFileFlagName, tlsKeyFileEnvKey, true)
			if err != nil {
				return err
			}

			attrHost, err := getUserSetVar(cmd, attrHostFlagName, attrHostEnvKey, true)
			if err != nil {
				return err
			}

			parameters := &kasParameters{
				server:      server,
				host:        host,
				tlsCertFile: tlsCertFile,
				tlsKeyFile:  tlsKeyFile,
				attrHost:    attrHost,
			}

			return startKAS(parameters)
		},
	}
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(hostFlagName, hostFlagShorthand, "", hostFlagUsage)
	startCmd.Flags().StringP(logLevelFlagName, "", "", logLevelFlagUsage)
	startCmd.Flags().StringP(tlsCertFileFlagName, tlsCertFileFlagShorthand, "", tlsCertFileFlagUsage)
	startCmd.Flags().StringP(tlsKeyFileFlagName, tlsKeyFileFlagShorthand, "", tlsKeyFileFlagUsage)
	startCmd.Flags().StringP(attrHostFlagName, "", "", attrHostFlagUsage)
}

func getUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", errors.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		return value, nil
	}

	return "", errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

func setLogLevel(level string) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrap(err, "failed to parse log level")
	}

	log.SetLevel("", parsed)

	return nil
}

func envBool(key string) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && value
}

// loadKeys registers the key material from the environment. The RSA unwrap
// key is mandatory; everything else degrades gracefully.
func loadKeys(km *keymaster.KeyMaster) error {
	private := os.Getenv(kasPrivateKeyEnvKey)
	if private == "" {
		return errors.New(kasPrivateKeyEnvKey + " not set")
	}

	km.SetKeyPEM(keymaster.KeyKASPrivate, keymaster.Private, []byte(private))

	if cert := os.Getenv(kasCertificateEnvKey); cert != "" {
		km.SetKeyPEM(keymaster.KeyKASPublic, keymaster.Public, []byte(cert))
	}

	if ecPrivate := os.Getenv(kasECPrivateKeyEnvKey); ecPrivate != "" {
		km.SetKeyPEM(keymaster.KeyKASECPrivate, keymaster.Private, []byte(ecPrivate))
	}

	if ecCert := os.Getenv(kasECCertEnvKey); ecCert != "" {
		km.SetKeyPEM(keymaster.KeyKASECPublic, keymaster.Public, []byte(ecCert))
	}

	if easCert := os.Getenv(easCertificateEnvKey); easCert != "" {
		km.SetKeyPEM(keymaster.KeyAAPublic, keymaster.Public, []byte(easCert))
	}

	return nil
}

func buildPlugins(attrHost string) *plugin.Chain {
	chain := plugin.NewChain()

	if allowList := os.Getenv(eoAllowListEnvKey); allowList != "" {
		chain.Register(plugin.NewEOAllowList(allowList))
	}

	if blockList := os.Getenv(eoBlockListEnvKey); blockList != "" {
		chain.Register(plugin.NewEOBlockList(blockList))
	}

	if attrHost != "" {
		chain.Register(plugin.NewEASAttributeFetcher(attrHost))
	}

	return chain
}

func startKAS(parameters *kasParameters) error {
	if parameters.host == "" {
		return errMissingHost
	}

	km := keymaster.New()
	if err := loadKeys(km); err != nil {
		return errors.Wrap(err, "failed to load key material")
	}

	cfg := &service.Config{
		KeyMaster:   km,
		Plugins:     buildPlugins(parameters.attrHost),
		Version:     serviceVersion,
		UseKeycloak: envBool(useKeycloakEnvKey),
		LegacyIV:    envBool(legacyIVEnvKey),
	}

	if cfg.UseKeycloak {
		keycloakHost := os.Getenv(keycloakHostEnvKey)
		if keycloakHost == "" {
			return errors.New(keycloakHostEnvKey + " not set")
		}

		cfg.RealmKeys = keymaster.NewRealmKeyFetcher(km, keycloakHost)
	}

	svc := service.New(cfg)

	router := mux.NewRouter()

	for _, handler := range controller.GetRESTHandlers(svc) {
		router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}

	logger.Infof("Starting kas rest on host [%s]", parameters.host)

	handler := cors.New(
		cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		},
	).Handler(router)

	err := parameters.server.ListenAndServe(parameters.host, handler, parameters.tlsCertFile, parameters.tlsKeyFile)
	if err != nil {
		return errors.Wrapf(err, "failed to start kas rest on host [%s]", parameters.host)
	}

	return nil
}
