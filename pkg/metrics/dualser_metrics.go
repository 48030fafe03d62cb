// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	serializerSubsystem = "serializer"
	framerSubsystem     = "framer"
	transcodeSubsystem  = "transcode"
)

var (
	SerializerProcessedUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: dualserNamespace,
			Subsystem: serializerSubsystem,
			Name:      "processed_units_total",
			Help:      "通过 Marshal/Unmarshal 处理的数据量，buffer 为字节数，array 为元素个数",
		}, []string{KindLabelName, ModeLabelName})

	SerializerRecordSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: dualserNamespace,
			Subsystem: serializerSubsystem,
			Name:      "record_size_bytes",
			Help:      "单条二进制记录的大小",
			Buckets:   recordSizeBuckets,
		}, []string{ModeLabelName})

	SerializerFramingRollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: dualserNamespace,
			Subsystem: serializerSubsystem,
			Name:      "framing_rollbacks_total",
			Help:      "TrackLength 因 body 失败或 panic 而回滚游标的次数",
		}, []string{KindLabelName, ModeLabelName})

	SerializerRecoveredPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: dualserNamespace,
			Subsystem: serializerSubsystem,
			Name:      "recovered_panics_total",
			Help:      "辅助函数从字段操作 panic 中恢复的次数",
		}, []string{ModeLabelName, ReasonLabelName})

	SerializerFieldMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: dualserNamespace,
			Subsystem: serializerSubsystem,
			Name:      "field_type_mismatches_total",
			Help:      "CheckedSerializer 检测到的字段类型标记不一致次数",
		})

	FramerFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: dualserNamespace,
			Subsystem: framerSubsystem,
			Name:      "frames_total",
			Help:      "读写的长度前缀帧数量",
		}, []string{DirectionLabelName})

	FramerBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: dualserNamespace,
			Subsystem: framerSubsystem,
			Name:      "payload_bytes_total",
			Help:      "读写的帧负载字节数，不含长度前缀",
		}, []string{DirectionLabelName})

	FramerRejectedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: dualserNamespace,
			Subsystem: framerSubsystem,
			Name:      "rejected_frames_total",
			Help:      "因超过最大帧大小而被拒绝的帧数量",
		}, []string{DirectionLabelName})

	TranscodeRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: dualserNamespace,
			Subsystem: transcodeSubsystem,
			Name:      "records_total",
			Help:      "批量转码处理的记录数",
		}, []string{OpLabelName, StatusLabelName})

	TranscodeBatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: dualserNamespace,
			Subsystem: transcodeSubsystem,
			Name:      "batch_latency",
			Help:      "单个批次的转码耗时，单位毫秒",
			Buckets:   buckets,
		}, []string{OpLabelName})
)

func registerSerializerMetrics(r prometheus.Registerer) {
	r.MustRegister(SerializerProcessedUnits)
	r.MustRegister(SerializerRecordSize)
	r.MustRegister(SerializerFramingRollbacks)
	r.MustRegister(SerializerRecoveredPanics)
	r.MustRegister(SerializerFieldMismatches)
}

func registerFramerMetrics(r prometheus.Registerer) {
	r.MustRegister(FramerFrames)
	r.MustRegister(FramerBytes)
	r.MustRegister(FramerRejectedFrames)
}

func registerTranscodeMetrics(r prometheus.Registerer) {
	r.MustRegister(TranscodeRecords)
	r.MustRegister(TranscodeBatchLatency)
}
