package fix

// SOH is the field delimiter.
const SOH byte = 0x01

// BeginString values.
const (
	BeginStringFIX44 = "FIX.4.4"
)

// Field tags.
const (
	TagBeginString     = 8
	TagBodyLength      = 9
	TagCheckSum        = 10
	TagMsgSeqNum       = 34
	TagMsgType         = 35
	TagPossDupFlag     = 43
	TagRefSeqNum       = 45
	TagSenderCompID    = 49
	TagSenderSubID     = 50
	TagSendingTime     = 52
	TagSymbol          = 55
	TagTargetCompID    = 56
	TagText            = 58
	TagEncryptMethod   = 98
	TagHeartBtInt      = 108
	TagTestReqID       = 112
	TagDeliverToCompID = 128
	TagResetSeqNumFlag = 141
	TagNoRelatedSym    = 146
	TagSecurityType    = 167

	TagMDReqID                 = 262
	TagSubscriptionRequestType = 263
	TagMarketDepth             = 264
	TagMDUpdateType            = 265
	TagNoMDEntryTypes          = 267
	TagNoMDEntries             = 268
	TagMDEntryType             = 269
	TagMDEntryPx               = 270
	TagMDEntrySize             = 271
	TagMDReqRejReason          = 281
	TagProduct                 = 460
	TagUsername                = 553
	TagPassword                = 554
)

// Message types.
const (
	MsgTypeHeartbeat             = "0"
	MsgTypeTestRequest           = "1"
	MsgTypeReject                = "3"
	MsgTypeLogout                = "5"
	MsgTypeLogon                 = "A"
	MsgTypeMarketDataRequest     = "V"
	MsgTypeMarketDataSnapshot    = "W"
	MsgTypeMarketDataIncremental = "X"
	MsgTypeMarketDataReject      = "Y"
	MsgTypeMassQuote             = "i"
	MsgTypeBusinessReject        = "j"
)

// MDEntryType values.
const (
	EntryTypeBid   = "0"
	EntryTypeOffer = "1"
)

// SendingTimeFormat is the UTCTimestamp layout with millisecond precision.
const SendingTimeFormat = "20060102-15:04:05.000"

// MsgTypeName returns a readable name for a message type.
func MsgTypeName(t string) string {
	switch t {
	case MsgTypeHeartbeat:
		return "Heartbeat"
	case MsgTypeTestRequest:
		return "TestRequest"
	case MsgTypeReject:
		return "Reject"
	case MsgTypeLogout:
		return "Logout"
	case MsgTypeLogon:
		return "Logon"
	case MsgTypeMarketDataRequest:
		return "MarketDataRequest"
	case MsgTypeMarketDataSnapshot:
		return "MarketDataSnapshotFullRefresh"
	case MsgTypeMarketDataIncremental:
		return "MarketDataIncrementalRefresh"
	case MsgTypeMarketDataReject:
		return "MarketDataRequestReject"
	case MsgTypeMassQuote:
		return "MassQuote"
	case MsgTypeBusinessReject:
		return "BusinessMessageReject"
	default:
		return "Unknown(" + t + ")"
	}
}
