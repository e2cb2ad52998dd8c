//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/region-aggregator/internal/regions"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

// regionsCSV holds two Austrian NUTS-2 boxes plus the country row that the
// derived exclusion removes.
const regionsCSV = `NUTS_ID,NUTS_NAME,t2m,geometry
AT,Österreich,,"POLYGON ((9 46, 17 46, 17 49, 9 49, 9 46))"
AT13,Wien,,"POLYGON ((16 48, 17 48, 17 48.5, 16 48.5, 16 48))"
AT22,Steiermark,,"POLYGON ((14 46.5, 16 46.5, 16 47.5, 14 47.5, 14 46.5))"
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, kafkaImage)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func loadRegions(t *testing.T) regions.RegionSet {
	t.Helper()
	set, err := regions.NewLoader(regions.Options{DeriveExclusions: true, Logger: discardLogger()}).
		LoadCSV(regionsCSV, true)
	require.NoError(t, err)
	require.Len(t, set.Regions, 2)
	return set
}
