// Copyright 2013-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included in
// the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
// file, in accordance with the Business Source License, use of this software
// will be governed by the Apache License, Version 2.0, included in the file
// licenses/APL2.txt.

package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	// LogLevelInfo log messages for info
	LogLevelInfo
	// LogLevelDebug log messages for info and debug
	LogLevelDebug
	// LogLevelTrace log messages info, debug and trace
	LogLevelTrace
)

const (
	LOG_LEVEL_ERROR_STR string = "Error"
	LOG_LEVEL_WARN_STR  string = "Warn"
	LOG_LEVEL_INFO_STR  string = "Info"
	LOG_LEVEL_DEBUG_STR string = "Debug"
	LOG_LEVEL_TRACE_STR string = "Trace"
)

type LoggerContext struct {
	Log_file  io.Writer
	Log_level LogLevel
}

func CopyCtx(ctx_to_copy *LoggerContext) *LoggerContext {
	return &LoggerContext{Log_file: ctx_to_copy.Log_file,
		Log_level: ctx_to_copy.Log_level}
}

var DefaultLoggerContext = &LoggerContext{os.Stdout, LogLevelInfo}

type CommonLogger struct {
	logger  *log.Logger
	context *LoggerContext
}

func NewLogger(module string, logger_context *LoggerContext) *CommonLogger {
	context := DefaultLoggerContext
	if logger_context != nil {
		context = logger_context
	}
	l := log.New(context.Log_file, module+" ", log.Lmicroseconds)
	return &CommonLogger{l, context}
}

func (l *CommonLogger) logMsgf(level LogLevel, prefix string, format string, v ...interface{}) {
	if l != nil && l.context.Log_level >= level {
		l.logger.Printf(prefix+format, v...)
	}
}

func (l *CommonLogger) logMsg(level LogLevel, prefix string, msg string) {
	if l != nil && l.context.Log_level >= level {
		l.logger.Println(prefix + msg)
	}
}

func (l *CommonLogger) Errorf(format string, v ...interface{}) {
	l.logMsgf(LogLevelError, "[ERROR] ", format, v...)
}

func (l *CommonLogger) Warnf(format string, v ...interface{}) {
	l.logMsgf(LogLevelWarn, "[WARN] ", format, v...)
}

func (l *CommonLogger) Infof(format string, v ...interface{}) {
	l.logMsgf(LogLevelInfo, "[INFO] ", format, v...)
}

func (l *CommonLogger) Debugf(format string, v ...interface{}) {
	l.logMsgf(LogLevelDebug, "[DEBUG] ", format, v...)
}

func (l *CommonLogger) Tracef(format string, v ...interface{}) {
	l.logMsgf(LogLevelTrace, "[TRACE] ", format, v...)
}

func (l *CommonLogger) Error(msg string) {
	l.logMsg(LogLevelError, "[ERROR] ", msg)
}

func (l *CommonLogger) Warn(msg string) {
	l.logMsg(LogLevelWarn, "[WARN] ", msg)
}

func (l *CommonLogger) Info(msg string) {
	l.logMsg(LogLevelInfo, "[INFO] ", msg)
}

func (l *CommonLogger) Debug(msg string) {
	l.logMsg(LogLevelDebug, "[DEBUG] ", msg)
}

func (l *CommonLogger) Trace(msg string) {
	l.logMsg(LogLevelTrace, "[TRACE] ", msg)
}

func (l *CommonLogger) LoggerContext() *LoggerContext {
	if l == nil {
		return DefaultLoggerContext
	}
	return l.context
}

func LogLevelFromStr(levelStr string) (LogLevel, error) {
	var level LogLevel
	switch levelStr {
	case LOG_LEVEL_ERROR_STR:
		level = LogLevelError
	case LOG_LEVEL_WARN_STR:
		level = LogLevelWarn
	case LOG_LEVEL_INFO_STR:
		level = LogLevelInfo
	case LOG_LEVEL_DEBUG_STR:
		level = LogLevelDebug
	case LOG_LEVEL_TRACE_STR:
		level = LogLevelTrace
	default:
		return -1, fmt.Errorf("%v is not a valid log level", levelStr)
	}
	return level, nil
}

func (level LogLevel) String() string {
	switch level {
	case LogLevelError:
		return LOG_LEVEL_ERROR_STR
	case LogLevelWarn:
		return LOG_LEVEL_WARN_STR
	case LogLevelInfo:
		return LOG_LEVEL_INFO_STR
	case LogLevelDebug:
		return LOG_LEVEL_DEBUG_STR
	case LogLevelTrace:
		return LOG_LEVEL_TRACE_STR
	}
	return ""
}
