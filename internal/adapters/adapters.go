// Package adapters provides the typed request/response catalog over the
// opaque rpcproto.Invoker surface. Each adapter pairs a field-struct
// request with a plain response struct plus accessor methods for the
// handful of derived fields (IsSuccess, First, AllWarnings) callers
// routinely need.
//
// Covered: Bootstrap, etcd member listing, configuration apply, service
// logs and kernel dmesg (both streamed), node reset, service
// start/stop/restart, image listing, and the two system-info probes
// discovery.Service calls. Further resources (events, files, netstat)
// are a mechanical repeat of this same Request/Response/adapter shape
// against a different RPC name.
package adapters

import (
	"context"
	"io"
	"time"

	"github.com/xmv-solutions/talos-client-go/internal/rpcproto"
	"github.com/xmv-solutions/talos-client-go/internal/stream"
)

// ServiceMachine is the gRPC service every adapter in this catalog talks
// to; exported so callers can label metrics and spans with it.
const ServiceMachine = "machine.MachineService"

// Invoker narrows rpcproto.Invoker to what adapters need, so tests can
// supply a mock without pulling in transport.
type Invoker = rpcproto.Invoker

// BootstrapRequest configures the Bootstrap RPC: bootstrap initialises
// etcd on the first control-plane node and must only be called once per
// cluster.
type BootstrapRequest struct {
	RecoverEtcd          bool
	RecoverSkipHashCheck bool
}

// NewBootstrapRequest is the standard, non-recovery bootstrap request.
func NewBootstrapRequest() BootstrapRequest { return BootstrapRequest{} }

// RecoveryBootstrapRequest restores from an etcd snapshot uploaded via a
// prior (unported) EtcdRecover RPC.
func RecoveryBootstrapRequest(skipHashCheck bool) BootstrapRequest {
	return BootstrapRequest{RecoverEtcd: true, RecoverSkipHashCheck: skipHashCheck}
}

// BootstrapResult is one node's outcome from a Bootstrap call.
type BootstrapResult struct {
	Node string
}

// BootstrapResponse wraps every node's BootstrapResult.
type BootstrapResponse struct {
	Results []BootstrapResult
}

func (r BootstrapResponse) IsSuccess() bool { return len(r.Results) > 0 }

func (r BootstrapResponse) First() (BootstrapResult, bool) {
	if len(r.Results) == 0 {
		return BootstrapResult{}, false
	}
	return r.Results[0], true
}

// Bootstrap encodes req and invokes the Bootstrap RPC. The response is a
// uint32 count followed by that many length-prefixed node names, each
// becoming one BootstrapResult.
func Bootstrap(ctx context.Context, invoker Invoker, req BootstrapRequest) (BootstrapResponse, error) {
	payload := encodeBootstrapRequest(req)
	respBytes, err := invoker.Invoke(ctx, ServiceMachine, "Bootstrap", payload)
	if err != nil {
		return BootstrapResponse{}, err
	}
	return decodeBootstrapResponse(respBytes), nil
}

// EtcdMemberListRequest has no fields: it lists every known etcd member
// from the node it's sent to.
type EtcdMemberListRequest struct{}

// EtcdMember carries the member fields internal/discovery needs.
type EtcdMember struct {
	Hostname   string
	ClientURLs []string
}

type EtcdMemberListResponse struct {
	Members []EtcdMember
}

// EtcdMemberList invokes the etcd member-list RPC, returning results in
// the shape internal/discovery.EtcdLister expects.
func EtcdMemberList(ctx context.Context, invoker Invoker) (EtcdMemberListResponse, error) {
	respBytes, err := invoker.Invoke(ctx, ServiceMachine, "EtcdMemberList", nil)
	if err != nil {
		return EtcdMemberListResponse{}, err
	}
	return decodeEtcdMemberListResponse(respBytes), nil
}

// ApplyMode selects how a configuration change is applied. The numeric
// values are part of the wire contract.
type ApplyMode int32

const (
	ApplyModeReboot ApplyMode = iota
	ApplyModeAuto
	ApplyModeNoReboot
	ApplyModeStaged
	ApplyModeTry
)

func (m ApplyMode) String() string {
	switch m {
	case ApplyModeReboot:
		return "reboot"
	case ApplyModeAuto:
		return "auto"
	case ApplyModeNoReboot:
		return "no-reboot"
	case ApplyModeStaged:
		return "staged"
	case ApplyModeTry:
		return "try"
	default:
		return "auto"
	}
}

// ApplyConfigurationRequest carries raw YAML/bytes, an ApplyMode, a
// dry-run flag, and an optional try-mode timeout.
type ApplyConfigurationRequest struct {
	Data           []byte
	Mode           ApplyMode
	DryRun         bool
	TryModeTimeout time.Duration // zero means unset
}

// ApplyConfigurationFromYAML builds the common case: Auto mode, no
// dry-run.
func ApplyConfigurationFromYAML(yaml string) ApplyConfigurationRequest {
	return ApplyConfigurationRequest{Data: []byte(yaml), Mode: ApplyModeAuto}
}

type ApplyConfigurationResult struct {
	Node        string
	Warnings    []string
	Mode        ApplyMode
	ModeDetails string
}

type ApplyConfigurationResponse struct {
	Results []ApplyConfigurationResult
}

// IsSuccess means every node reported zero warnings, not merely that the
// RPC returned without error.
func (r ApplyConfigurationResponse) IsSuccess() bool {
	for _, res := range r.Results {
		if len(res.Warnings) > 0 {
			return false
		}
	}
	return true
}

func (r ApplyConfigurationResponse) AllWarnings() []string {
	var out []string
	for _, res := range r.Results {
		out = append(out, res.Warnings...)
	}
	return out
}

func (r ApplyConfigurationResponse) First() (ApplyConfigurationResult, bool) {
	if len(r.Results) == 0 {
		return ApplyConfigurationResult{}, false
	}
	return r.Results[0], true
}

// ApplyConfiguration invokes the ApplyConfiguration RPC.
func ApplyConfiguration(ctx context.Context, invoker Invoker, req ApplyConfigurationRequest) (ApplyConfigurationResponse, error) {
	payload := encodeApplyConfigurationRequest(req)
	respBytes, err := invoker.Invoke(ctx, ServiceMachine, "ApplyConfiguration", payload)
	if err != nil {
		return ApplyConfigurationResponse{}, err
	}
	return decodeApplyConfigurationResponse(respBytes), nil
}

// ContainerDriver selects which container runtime's logs to read.
type ContainerDriver int32

const (
	ContainerDriverContainerd ContainerDriver = iota
	ContainerDriverCRI
)

func (d ContainerDriver) String() string {
	if d == ContainerDriverCRI {
		return "cri"
	}
	return "containerd"
}

// LogsRequest identifies one service or container whose logs to stream.
type LogsRequest struct {
	Namespace string
	ID        string
	Driver    ContainerDriver
	Follow    bool
	TailLines int32
}

// NewLogsRequest is the common case: no namespace, containerd driver, no
// follow, full history.
func NewLogsRequest(id string) LogsRequest {
	return LogsRequest{ID: id, Driver: ContainerDriverContainerd}
}

// StreamLogs opens the Logs RPC and assembles it into one Result.
// Callers that want per-line delivery should call invoker.InvokeStream
// directly instead.
func StreamLogs(ctx context.Context, invoker Invoker, req LogsRequest) (stream.Result, error) {
	payload := encodeLogsRequest(req)
	receiver, err := invoker.InvokeStream(ctx, ServiceMachine, "Logs", payload)
	if err != nil {
		return stream.Result{}, err
	}
	return stream.Assemble(ctx, receiver)
}

// SystemVersion and SystemHostname are the two probes
// internal/discovery's health check calls, in that order.

type SystemVersionResponse struct {
	Tag string
}

func SystemVersion(ctx context.Context, invoker Invoker) (SystemVersionResponse, error) {
	respBytes, err := invoker.Invoke(ctx, ServiceMachine, "Version", nil)
	if err != nil {
		return SystemVersionResponse{}, err
	}
	return decodeSystemVersionResponse(respBytes), nil
}

type SystemHostnameResponse struct {
	Hostname string
}

func SystemHostname(ctx context.Context, invoker Invoker) (SystemHostnameResponse, error) {
	respBytes, err := invoker.Invoke(ctx, ServiceMachine, "Hostname", nil)
	if err != nil {
		return SystemHostnameResponse{}, err
	}
	return SystemHostnameResponse{Hostname: string(respBytes)}, nil
}

// DmesgRequest configures the kernel-message-buffer stream.
type DmesgRequest struct {
	Follow bool
	Tail   bool
}

// NewDmesgRequest reads the whole buffer once: neither follow nor tail.
func NewDmesgRequest() DmesgRequest { return DmesgRequest{} }

// FollowDmesgRequest keeps the stream open for new messages.
func FollowDmesgRequest() DmesgRequest { return DmesgRequest{Follow: true} }

// TailDmesgRequest starts from the end of the buffer.
func TailDmesgRequest() DmesgRequest { return DmesgRequest{Tail: true} }

// StreamDmesg opens the kernel-message-buffer RPC and assembles it into
// one Result, same shape as StreamLogs.
func StreamDmesg(ctx context.Context, invoker Invoker, req DmesgRequest) (stream.Result, error) {
	payload := encodeDmesgRequest(req)
	receiver, err := invoker.InvokeStream(ctx, ServiceMachine, "Dmesg", payload)
	if err != nil {
		return stream.Result{}, err
	}
	return stream.Assemble(ctx, receiver)
}

// WipeMode selects which disks a reset wipes. The numeric values are
// part of the wire contract.
type WipeMode int32

const (
	WipeModeAll WipeMode = iota
	WipeModeSystemDisk
	WipeModeUserDisks
)

func (m WipeMode) String() string {
	switch m {
	case WipeModeSystemDisk:
		return "system-disk"
	case WipeModeUserDisks:
		return "user-disks"
	default:
		return "all"
	}
}

// ResetPartitionSpec names a partition label and whether it should be
// wiped.
type ResetPartitionSpec struct {
	Label string
	Wipe  bool
}

// WipePartition marks one partition for wiping.
func WipePartition(label string) ResetPartitionSpec {
	return ResetPartitionSpec{Label: label, Wipe: true}
}

// ResetRequest configures the Reset RPC.
type ResetRequest struct {
	Graceful               bool
	Reboot                 bool
	SystemPartitionsToWipe []ResetPartitionSpec
	UserDisksToWipe        []string
	Mode                   WipeMode
}

// GracefulResetRequest leaves etcd gracefully, reboots after reset, and
// wipes all disks.
func GracefulResetRequest() ResetRequest {
	return ResetRequest{Graceful: true, Reboot: true, Mode: WipeModeAll}
}

// ForceResetRequest skips the graceful etcd leave, reboots after reset,
// and wipes all disks.
func ForceResetRequest() ResetRequest {
	return ResetRequest{Graceful: false, Reboot: true, Mode: WipeModeAll}
}

// HaltResetRequest leaves etcd gracefully and halts without rebooting.
func HaltResetRequest() ResetRequest {
	return ResetRequest{Graceful: true, Reboot: false, Mode: WipeModeAll}
}

// ResetResult is the node that acknowledged the reset and the actor ID
// that initiated it.
type ResetResult struct {
	Node    string
	ActorID string
}

type ResetResponse struct {
	Results []ResetResult
}

func (r ResetResponse) IsSuccess() bool { return len(r.Results) > 0 }

func (r ResetResponse) First() (ResetResult, bool) {
	if len(r.Results) == 0 {
		return ResetResult{}, false
	}
	return r.Results[0], true
}

// Reset invokes the Reset RPC, which wipes and (optionally) reboots the
// node — destructive, and typically called once per node being
// decommissioned.
func Reset(ctx context.Context, invoker Invoker, req ResetRequest) (ResetResponse, error) {
	payload := encodeResetRequest(req)
	respBytes, err := invoker.Invoke(ctx, ServiceMachine, "Reset", payload)
	if err != nil {
		return ResetResponse{}, err
	}
	return decodeResetResponse(respBytes), nil
}

// Kubeconfig retrieves the cluster's admin kubeconfig via a
// server-streaming RPC, folded through the same streaming assembler
// every other stream uses.
func Kubeconfig(ctx context.Context, invoker Invoker) (stream.Result, error) {
	receiver, err := invoker.InvokeStream(ctx, ServiceMachine, "GenerateConfiguration", nil)
	if err != nil {
		return stream.Result{}, err
	}
	return stream.Assemble(ctx, receiver)
}

// ServiceStartRequest, ServiceStopRequest and ServiceRestartRequest each
// name the OS-level service by ID.
type ServiceStartRequest struct{ ID string }
type ServiceStopRequest struct{ ID string }
type ServiceRestartRequest struct{ ID string }

// ServiceResult is one node's outcome from a service lifecycle call.
type ServiceResult struct {
	Node    string
	Service string
	Message string
}

type ServiceResponse struct {
	Results []ServiceResult
}

func (r ServiceResponse) First() (ServiceResult, bool) {
	if len(r.Results) == 0 {
		return ServiceResult{}, false
	}
	return r.Results[0], true
}

func ServiceStart(ctx context.Context, invoker Invoker, req ServiceStartRequest) (ServiceResponse, error) {
	respBytes, err := invoker.Invoke(ctx, ServiceMachine, "ServiceStart", putString(nil, req.ID))
	if err != nil {
		return ServiceResponse{}, err
	}
	return decodeServiceResponse(respBytes), nil
}

func ServiceStop(ctx context.Context, invoker Invoker, req ServiceStopRequest) (ServiceResponse, error) {
	respBytes, err := invoker.Invoke(ctx, ServiceMachine, "ServiceStop", putString(nil, req.ID))
	if err != nil {
		return ServiceResponse{}, err
	}
	return decodeServiceResponse(respBytes), nil
}

func ServiceRestart(ctx context.Context, invoker Invoker, req ServiceRestartRequest) (ServiceResponse, error) {
	respBytes, err := invoker.Invoke(ctx, ServiceMachine, "ServiceRestart", putString(nil, req.ID))
	if err != nil {
		return ServiceResponse{}, err
	}
	return decodeServiceResponse(respBytes), nil
}

// ContainerdNamespace selects which containerd namespace to list/pull
// images in.
type ContainerdNamespace int32

const (
	ContainerdNamespaceSystem ContainerdNamespace = iota
	ContainerdNamespaceCRI
)

// ImageListRequest configures the image-listing stream.
type ImageListRequest struct {
	Namespace ContainerdNamespace
}

func NewImageListRequest(ns ContainerdNamespace) ImageListRequest {
	return ImageListRequest{Namespace: ns}
}

// ImageInfo is one listed image's digest and size.
type ImageInfo struct {
	Name   string
	Digest string
	Size   int64
}

type ImageListResponse struct {
	Images []ImageInfo
}

// ImageList invokes the image-listing RPC, decoding a server-streamed
// reply into one in-memory slice. The catalog decodes one frame per
// image itself instead of delegating to stream.Assemble: the payload is
// structured records, not an opaque byte blob like logs/dmesg/kubeconfig.
func ImageList(ctx context.Context, invoker Invoker, req ImageListRequest) (ImageListResponse, error) {
	payload := putUint32(nil, uint32(req.Namespace))
	receiver, err := invoker.InvokeStream(ctx, ServiceMachine, "ImageList", payload)
	if err != nil {
		return ImageListResponse{}, err
	}

	var images []ImageInfo
	for {
		chunk, err := receiver.Recv(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return ImageListResponse{}, err
		}
		name, rest := readString(chunk.Bytes)
		digest, rest := readString(rest)
		sizeRaw, _ := readUint32(rest)
		images = append(images, ImageInfo{Name: name, Digest: digest, Size: int64(sizeRaw)})
	}
	return ImageListResponse{Images: images}, nil
}
