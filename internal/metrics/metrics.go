package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quotefeed"

var (
	// Transport
	BytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_received_total",
		Help:      "Bytes read from the quote server.",
	})
	BytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_sent_total",
		Help:      "Bytes written to the quote server.",
	})
	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_errors_total",
		Help:      "Inbound frames dropped as malformed or failing checksum.",
	})

	// Session
	MessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Inbound session messages by type.",
	}, []string{"msg_type"})
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Outbound session messages by type.",
	}, []string{"msg_type"})
	SendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_errors_total",
		Help:      "Outbound messages dropped because the transport failed.",
	})
	SessionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_state",
		Help:      "Current session state (0=disconnected 1=logging_on 2=logged_on 3=logging_out 4=closed).",
	})
	SequenceGaps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_sequence_gaps_total",
		Help:      "Inbound MsgSeqNum discontinuities observed.",
	})

	// Tick pipeline
	EventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_emitted_total",
		Help:      "Events emitted by kind.",
	}, []string{"kind"})
	TicksAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_appended_total",
		Help:      "Ticks appended to symbol history.",
	})
	GroupErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "group_parse_errors_total",
		Help:      "Market-data messages with inconsistent repeating groups.",
	})

	// Outputs
	PublishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_errors_total",
		Help:      "Event publish failures by publisher.",
	}, []string{"publisher"})
	RouterBufferLen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "router_buffer_len",
		Help:      "Events waiting to be published.",
	})
	WriterInserts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "writer_inserts_total",
		Help:      "Ticks inserted into the database.",
	})
	WriterErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "writer_errors_total",
		Help:      "Failed tick batch flushes.",
	})
	WriterFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "writer_flushes_total",
		Help:      "Tick batch flushes.",
	})
)

func init() {
	prometheus.MustRegister(
		BytesReceived, BytesSent, DecodeErrors,
		MessagesReceived, MessagesSent, SendErrors, SessionState, SequenceGaps,
		EventsEmitted, TicksAppended, GroupErrors,
		PublishErrors, RouterBufferLen,
		WriterInserts, WriterErrors, WriterFlushes,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
