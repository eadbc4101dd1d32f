// Package proto holds the wire contract between the gophauth client and the
// remote account service.
//
// Messages are plain Go structs encoded by the JSON codec registered in this
// package (content-subtype "json"). Callers must dial with
// grpc.CallContentSubtype(CodecName) so both ends agree on the encoding; the
// server side resolves the codec from the request content-type.
package proto
