// Package memory holds typed object pools used to recycle the level
// arenas of order books, so a level emptied in one place can back a new
// price level elsewhere without another allocation.
package memory
