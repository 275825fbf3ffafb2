package main

/*
#if defined(_WIN32)
#define LIB_API __declspec(dllexport)
#else
#define LIB_API __attribute__((visibility("default")))
#endif

LIB_API const int SC_RESOLUTION_VGA = 1;
LIB_API const int SC_RESOLUTION_SXGA = 2;

LIB_API const int SC_DEPTH_RANGE_VERY_SHORT = 0;
LIB_API const int SC_DEPTH_RANGE_SHORT = 1;
LIB_API const int SC_DEPTH_RANGE_MEDIUM = 2;
LIB_API const int SC_DEPTH_RANGE_LONG = 3;
LIB_API const int SC_DEPTH_RANGE_VERY_LONG = 4;
LIB_API const int SC_DEPTH_RANGE_HYBRID = 5;
LIB_API const int SC_DEPTH_RANGE_DEFAULT = 6;

LIB_API const int SC_CALIBRATION_OFF = 0;
LIB_API const int SC_CALIBRATION_ONESHOT = 1;
LIB_API const int SC_CALIBRATION_CONTINUOUS = 2;

LIB_API const int SC_INFRARED_MODE_LEFT = 0;
LIB_API const int SC_INFRARED_MODE_RIGHT = 1;
LIB_API const int SC_INFRARED_MODE_RIGHTLEFT = 2;
*/
import "C"

// The constants are defined in C so the shared library exports them as data
// symbols. This file must not contain //export functions, otherwise the
// definitions would be duplicated into _cgo_export.c.
