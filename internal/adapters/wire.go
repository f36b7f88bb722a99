package adapters

import "encoding/binary"

// This module's own request/response framing for the handful of RPCs it
// wraps. These functions only need to be self-consistent: what
// Bootstrap/Invoke encodes, decodeBootstrapResponse and friends must
// decode back.

func putUint32(buf []byte, n uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return append(buf, b[:]...)
}

func readUint32(buf []byte) (uint32, []byte) {
	if len(buf) < 4 {
		return 0, buf
	}
	return binary.BigEndian.Uint32(buf[:4]), buf[4:]
}

func putString(buf []byte, s string) []byte {
	buf = putUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(buf []byte) (string, []byte) {
	n, rest := readUint32(buf)
	if uint64(n) > uint64(len(rest)) {
		return "", nil
	}
	return string(rest[:n]), rest[n:]
}

func putBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func readBool(buf []byte) (bool, []byte) {
	if len(buf) < 1 {
		return false, buf
	}
	return buf[0] != 0, buf[1:]
}

func putStrings(buf []byte, ss []string) []byte {
	buf = putUint32(buf, uint32(len(ss)))
	for _, s := range ss {
		buf = putString(buf, s)
	}
	return buf
}

func readStrings(buf []byte) ([]string, []byte) {
	n, rest := readUint32(buf)
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		var s string
		s, rest = readString(rest)
		out = append(out, s)
	}
	return out, rest
}

func encodeBootstrapRequest(req BootstrapRequest) []byte {
	var buf []byte
	buf = putBool(buf, req.RecoverEtcd)
	buf = putBool(buf, req.RecoverSkipHashCheck)
	return buf
}

func decodeBootstrapResponse(data []byte) BootstrapResponse {
	nodes, _ := readStrings(data)
	results := make([]BootstrapResult, 0, len(nodes))
	for _, n := range nodes {
		results = append(results, BootstrapResult{Node: n})
	}
	return BootstrapResponse{Results: results}
}

func decodeEtcdMemberListResponse(data []byte) EtcdMemberListResponse {
	count, rest := readUint32(data)
	members := make([]EtcdMember, 0, count)
	for i := uint32(0); i < count; i++ {
		var hostname string
		var urls []string
		hostname, rest = readString(rest)
		urls, rest = readStrings(rest)
		members = append(members, EtcdMember{Hostname: hostname, ClientURLs: urls})
	}
	return EtcdMemberListResponse{Members: members}
}

func encodeApplyConfigurationRequest(req ApplyConfigurationRequest) []byte {
	var buf []byte
	buf = putUint32(buf, uint32(req.Mode))
	buf = putBool(buf, req.DryRun)
	buf = putUint32(buf, uint32(req.TryModeTimeout.Nanoseconds()))
	buf = putUint32(buf, uint32(len(req.Data)))
	buf = append(buf, req.Data...)
	return buf
}

func decodeApplyConfigurationResponse(data []byte) ApplyConfigurationResponse {
	count, rest := readUint32(data)
	results := make([]ApplyConfigurationResult, 0, count)
	for i := uint32(0); i < count; i++ {
		var node, modeDetails string
		var warnings []string
		var mode uint32

		node, rest = readString(rest)
		warnings, rest = readStrings(rest)
		mode, rest = readUint32(rest)
		modeDetails, rest = readString(rest)

		results = append(results, ApplyConfigurationResult{
			Node:        node,
			Warnings:    warnings,
			Mode:        ApplyMode(mode),
			ModeDetails: modeDetails,
		})
	}
	return ApplyConfigurationResponse{Results: results}
}

func encodeLogsRequest(req LogsRequest) []byte {
	var buf []byte
	buf = putString(buf, req.Namespace)
	buf = putString(buf, req.ID)
	buf = putUint32(buf, uint32(req.Driver))
	buf = putBool(buf, req.Follow)
	buf = putUint32(buf, uint32(req.TailLines))
	return buf
}

func decodeSystemVersionResponse(data []byte) SystemVersionResponse {
	tag, _ := readString(data)
	return SystemVersionResponse{Tag: tag}
}

func encodeDmesgRequest(req DmesgRequest) []byte {
	var buf []byte
	buf = putBool(buf, req.Follow)
	buf = putBool(buf, req.Tail)
	return buf
}

func encodeResetRequest(req ResetRequest) []byte {
	var buf []byte
	buf = putBool(buf, req.Graceful)
	buf = putBool(buf, req.Reboot)
	buf = putUint32(buf, uint32(req.Mode))
	buf = putUint32(buf, uint32(len(req.SystemPartitionsToWipe)))
	for _, p := range req.SystemPartitionsToWipe {
		buf = putString(buf, p.Label)
		buf = putBool(buf, p.Wipe)
	}
	buf = putStrings(buf, req.UserDisksToWipe)
	return buf
}

func decodeResetResponse(data []byte) ResetResponse {
	count, rest := readUint32(data)
	results := make([]ResetResult, 0, count)
	for i := uint32(0); i < count; i++ {
		var node, actorID string
		node, rest = readString(rest)
		actorID, rest = readString(rest)
		results = append(results, ResetResult{Node: node, ActorID: actorID})
	}
	return ResetResponse{Results: results}
}

func decodeServiceResponse(data []byte) ServiceResponse {
	count, rest := readUint32(data)
	results := make([]ServiceResult, 0, count)
	for i := uint32(0); i < count; i++ {
		var node, service, message string
		node, rest = readString(rest)
		service, rest = readString(rest)
		message, rest = readString(rest)
		results = append(results, ServiceResult{Node: node, Service: service, Message: message})
	}
	return ServiceResponse{Results: results}
}
