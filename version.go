package psylens

// Version is the library release. The CLI and serving adapters report it;
// release builds may override it with -ldflags "-X".
var Version = "0.1.0"
