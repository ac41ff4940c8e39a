package bridge

import "time"

// heapPolicy mirrors the source's SharedHeapPolicy bitmask, selecting
// which resource classes route allocations through the shared heap
// instead of being copied through the data queue.
type heapPolicy uint32

const (
	HeapPolicyNone            heapPolicy = 0
	HeapPolicyTextures        heapPolicy = 1 << 0
	HeapPolicyDynamicBuffers  heapPolicy = 1 << 1
	HeapPolicyStaticBuffers   heapPolicy = 1 << 2
	HeapPolicyBuffersOnly     = HeapPolicyDynamicBuffers | HeapPolicyStaticBuffers
	HeapPolicyAll             = HeapPolicyTextures | HeapPolicyDynamicBuffers | HeapPolicyStaticBuffers
)

// Options is the full configuration surface of a bridge session,
// realized as a struct populated by functional Option setters in the
// teacher's own idiom (kaze.Opt/OptCreate/OptReset), covering every
// row of the external-interfaces configuration table: queue sizing,
// timeouts and retries, present back-pressure, shared heap policy and
// logging verbosity.
type Options struct {
	ModuleChannelMemSize int
	ModuleCmdQueueSize   uint32
	ModuleDataQueueSize  uint32

	ChannelMemSize int
	CmdQueueSize   uint32
	DataQueueSize  uint32

	SendReadOnlyCalls               bool
	SendAllServerResponses          bool
	SendCreateFunctionServerResponses bool
	LogAllCalls                     bool

	CommandTimeout  time.Duration
	StartupTimeout  time.Duration
	CommandRetries  int
	AckTimeout      time.Duration
	InfiniteRetries bool

	PresentSemaphoreMaxFrames int
	PresentSemaphoreEnabled   bool

	CommandBatchingEnabled bool

	DisableTimeoutsWhenDebugging bool
	DisableTimeouts              bool

	UseSharedHeap             bool
	SharedHeapPolicy          heapPolicy
	SharedHeapSegmentSize     int
	SharedHeapChunkSize       int
	SharedHeapFreeChunkWait   time.Duration
	AlwaysCopyEntireStaticBuf bool

	LogLevel string
}

// DefaultOptions returns the option set the original GlobalOptions
// singleton falls back to absent any override, reproduced field for
// field from util_bridgecommand's config/global_options.h defaults.
func DefaultOptions() Options {
	return Options{
		ModuleChannelMemSize: 4 << 20,
		ModuleCmdQueueSize:   5,
		ModuleDataQueueSize:  25,

		ChannelMemSize: 96 << 20,
		CmdQueueSize:   3 << 10,
		DataQueueSize:  3 << 10,

		SendReadOnlyCalls:                 false,
		SendAllServerResponses:             false,
		SendCreateFunctionServerResponses:  true,
		LogAllCalls:                        false,

		CommandTimeout:  1000 * time.Millisecond,
		StartupTimeout:  100 * time.Millisecond,
		CommandRetries:  300,
		AckTimeout:      10 * time.Millisecond,
		InfiniteRetries: false,

		PresentSemaphoreMaxFrames: 3,
		PresentSemaphoreEnabled:   true,

		CommandBatchingEnabled: false,

		DisableTimeoutsWhenDebugging: false,
		DisableTimeouts:              false,

		UseSharedHeap:             false,
		SharedHeapPolicy:          HeapPolicyNone,
		SharedHeapSegmentSize:     128 << 20,
		SharedHeapChunkSize:       4 << 10,
		SharedHeapFreeChunkWait:   10 * time.Second,
		AlwaysCopyEntireStaticBuf: false,

		LogLevel: "Info",
	}
}

// Option mutates an Options value, the same functional-options shape
// the teacher uses for kaze.Create/kaze.Open.
type Option func(*Options)

// Apply folds opts onto the bridge's defaults in order.
func Apply(opts ...Option) Options {
	o := DefaultOptions()
	for _, f := range opts {
		f(&o)
	}
	return o
}

func WithChannelMemSize(bytes int) Option {
	return func(o *Options) { o.ChannelMemSize = bytes }
}

func WithModuleChannelMemSize(bytes int) Option {
	return func(o *Options) { o.ModuleChannelMemSize = bytes }
}

func WithCommandTimeout(d time.Duration) Option {
	return func(o *Options) { o.CommandTimeout = d }
}

func WithCommandRetries(n int) Option {
	return func(o *Options) { o.CommandRetries = n }
}

func WithInfiniteRetries(v bool) Option {
	return func(o *Options) { o.InfiniteRetries = v }
}

func WithPresentSemaphoreMaxFrames(n int) Option {
	return func(o *Options) { o.PresentSemaphoreMaxFrames = n }
}

func WithSharedHeap(enabled bool, policy heapPolicy) Option {
	return func(o *Options) {
		o.UseSharedHeap = enabled
		o.SharedHeapPolicy = policy
	}
}

func WithSharedHeapSegmentSize(bytes int) Option {
	return func(o *Options) { o.SharedHeapSegmentSize = bytes }
}

func WithSharedHeapChunkSize(bytes int) Option {
	return func(o *Options) { o.SharedHeapChunkSize = bytes }
}

func WithLogLevel(level string) Option {
	return func(o *Options) { o.LogLevel = level }
}

func WithCommandBatching(v bool) Option {
	return func(o *Options) { o.CommandBatchingEnabled = v }
}

// syncFlags packs the runtime flags the server needs to mirror from
// the client into a single word, the same bit layout the source's
// getServerSyncFlags/applyServerSyncFlags pair uses to keep both
// processes' timeout/retry behavior consistent without re-reading
// config from disk on the server side.
type syncFlags uint32

const (
	flagDisableTimeouts syncFlags = 1 << 0
	flagInfiniteRetries syncFlags = 1 << 1
)

func (o Options) syncFlags() syncFlags {
	var f syncFlags
	if o.DisableTimeouts {
		f |= flagDisableTimeouts
	}
	if o.InfiniteRetries {
		f |= flagInfiniteRetries
	}
	return f
}

func (o *Options) applySyncFlags(f syncFlags) {
	o.DisableTimeouts = f&flagDisableTimeouts != 0
	o.InfiniteRetries = f&flagInfiniteRetries != 0
}
