/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	kascrypto "github.com/trustdataformat/kas-go/pkg/crypto"
	"github.com/trustdataformat/kas-go/pkg/keymaster"
)

type mockServer struct{}

func (s *mockServer) ListenAndServe(host string, router http.Handler, certFile, keyFile string) error {
	return nil
}

func kasPrivatePEM(t *testing.T) string {
	t.Helper()

	key, err := kascrypto.GenerateRSAKeyPair(kascrypto.MinRSAKeySize)
	require.NoError(t, err)

	pemStr, err := kascrypto.ExportPrivateKeyPEM(key)
	require.NoError(t, err)

	return pemStr
}

func TestStartCmdContents(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	require.Equal(t, "start", startCmd.Use)
	require.Equal(t, "Start the key access service", startCmd.Short)
	require.Equal(t, "Start the key access service rest server", startCmd.Long)
}

func TestStartCmdWithBlankHostArg(t *testing.T) {
	t.Setenv(kasPrivateKeyEnvKey, kasPrivatePEM(t))

	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + hostFlagName, ""})

	err = startCmd.Execute()
	require.Equal(t, errMissingHost, err)
}

func TestStartCmdWithMissingHostArg(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs(nil)

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), hostFlagName)
	require.Contains(t, err.Error(), hostEnvKey)
}

func TestStartCmdValidArgs(t *testing.T) {
	t.Setenv(kasPrivateKeyEnvKey, kasPrivatePEM(t))

	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + hostFlagName, "localhost:8080"})

	require.NoError(t, startCmd.Execute())
}

func TestStartCmdHostViaEnv(t *testing.T) {
	t.Setenv(kasPrivateKeyEnvKey, kasPrivatePEM(t))
	t.Setenv(hostEnvKey, "localhost:8080")

	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs(nil)

	require.NoError(t, startCmd.Execute())
}

func TestStartCmdInvalidLogLevel(t *testing.T) {
	t.Setenv(kasPrivateKeyEnvKey, kasPrivatePEM(t))

	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + hostFlagName, "localhost:8080",
		"--" + logLevelFlagName, "SHOUTING",
	})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse log level")
}

func TestStartCmdMissingPrivateKey(t *testing.T) {
	t.Setenv(kasPrivateKeyEnvKey, "")

	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + hostFlagName, "localhost:8080"})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), kasPrivateKeyEnvKey)
}

func TestStartCmdKeycloakWithoutHost(t *testing.T) {
	t.Setenv(kasPrivateKeyEnvKey, kasPrivatePEM(t))
	t.Setenv(useKeycloakEnvKey, "true")
	t.Setenv(keycloakHostEnvKey, "")

	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + hostFlagName, "localhost:8080"})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), keycloakHostEnvKey)
}

func TestLoadKeysRegistersOptionalMaterial(t *testing.T) {
	t.Setenv(kasPrivateKeyEnvKey, kasPrivatePEM(t))

	ecKey, err := kascrypto.GenerateECKeyPair(kascrypto.CurveSecp256r1)
	require.NoError(t, err)

	ecPEM, err := kascrypto.ExportPrivateKeyPEM(ecKey)
	require.NoError(t, err)
	t.Setenv(kasECPrivateKeyEnvKey, ecPEM)

	km := keymaster.New()
	require.NoError(t, loadKeys(km))

	require.True(t, km.Has(keymaster.KeyKASPrivate))
	require.True(t, km.Has(keymaster.KeyKASECPrivate))
	require.False(t, km.Has(keymaster.KeyAAPublic))
}

func TestEnvBool(t *testing.T) {
	t.Setenv(legacyIVEnvKey, "true")
	require.True(t, envBool(legacyIVEnvKey))

	t.Setenv(legacyIVEnvKey, "definitely")
	require.False(t, envBool(legacyIVEnvKey))

	t.Setenv(legacyIVEnvKey, "")
	require.False(t, envBool(legacyIVEnvKey))
}
