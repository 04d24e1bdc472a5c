package nfs

// ServiceName is the gRPC service exporting block layout devices.
//
// Every method takes and returns protobuf well-known types. Layout
// operations carry their NFSv4.1 arguments and results as XDR inside a
// BytesValue.
const ServiceName = "blocklayout.DeviceService"

// Full method names.
const (
	// Empty -> Struct{verifier, devices}
	MethodGetDeviceList = "/" + ServiceName + "/GetDeviceList"
	// BytesValue(deviceid4) -> BytesValue(pnfs_block_deviceaddr4)
	MethodGetDeviceInfo = "/" + ServiceName + "/GetDeviceInfo"
	// StringValue(name) -> BytesValue(file handle)
	MethodLookup = "/" + ServiceName + "/Lookup"
	// BytesValue(file handle) -> Struct
	MethodGetAttr = "/" + ServiceName + "/GetAttr"
	// BytesValue(LAYOUTGET args) -> BytesValue(layout4)
	MethodLayoutGet = "/" + ServiceName + "/LayoutGet"
	// BytesValue(LAYOUTCOMMIT args) -> BytesValue(LAYOUTCOMMIT4resok)
	MethodLayoutCommit = "/" + ServiceName + "/LayoutCommit"
)
