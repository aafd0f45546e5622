package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/and161185/accountd/internal/service"
	"github.com/and161185/accountd/internal/unique"
)

var (
	_ unique.Recorder              = (*Metrics)(nil)
	_ service.VerificationRecorder = (*Metrics)(nil)
	_ service.ClientRecorder       = (*Metrics)(nil)
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Collision("pid")
	m.Collision("pid")
	m.Issued("pid", 3)
	m.Exhausted("email_code")
	m.Verification("ok")
	m.Verification("rejected")
	m.Verification("rejected")
	m.ClientAuthorization(false)

	require.Equal(t, 2.0, testutil.ToFloat64(m.collisions.WithLabelValues("pid")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.issued.WithLabelValues("pid")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.exhausted.WithLabelValues("email_code")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.verifications.WithLabelValues("rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.clientAuth.WithLabelValues("denied")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.clientAuth.WithLabelValues("allowed")))
}

func TestMetrics_Gather(t *testing.T) {
	m := New()
	m.Issued("pid", 1)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["accountd_identifiers_issued_total"])
	require.True(t, names["accountd_identifier_attempts"])
	require.True(t, names["go_goroutines"])
}
