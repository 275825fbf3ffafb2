// Command libstructurecamera builds the camera as a C shared library:
//
//	go build -buildmode=c-shared -o libstructurecamera.so ./cmd/libstructurecamera
//
// The host includes structure_camera.h. The camera is created on the first
// call and configured from SC_CONFIG, SC_BACKEND, SC_LOG_LEVEL and
// SC_METRICS_ADDR.
package main

import "C"

func main() {}
