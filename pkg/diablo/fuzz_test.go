// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

import (
	"errors"
	"math/rand"
	"os"
	"reflect"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomBody builds a random body that satisfies its type's field constraints
func randomBody(rng *rand.Rand) Body {
	switch PacketType(rng.Intn(9) + 1) {
	case PacketBoardHeartbeat:
		return BoardHeartbeat{
			BoardType:   BoardType(rng.Intn(int(BoardActuator) + 1)),
			BoardID:     uint8(rng.Intn(256)),
			EngineState: EngineState(rng.Intn(int(EnginePostFire) + 1)),
			BoardState:  BoardState(rng.Intn(4) + 1),
		}
	case PacketServerHeartbeat:
		return ServerHeartbeat{EngineState: EngineState(rng.Intn(int(EnginePostFire) + 1))}
	case PacketSensorData:
		numChunks := rng.Intn(12) + 1
		numSensors := rng.Intn(12) + 1
		v := SensorData{NumSensors: uint8(numSensors), Chunks: make([]Chunk, numChunks)}
		for i := range v.Chunks {
			v.Chunks[i].Timestamp = rng.Uint32()
			v.Chunks[i].Datapoints = make([]Datapoint, numSensors)
			for j := range v.Chunks[i].Datapoints {
				v.Chunks[i].Datapoints[j] = Datapoint{SensorID: uint8(rng.Intn(256)), Value: rng.Uint32()}
			}
		}
		return v
	case PacketActuatorCommand:
		v := make(ActuatorCommands, rng.Intn(MaxCount)+1)
		for i := range v {
			v[i] = ActuatorCommand{ActuatorID: uint8(rng.Intn(256)), State: uint8(rng.Intn(256))}
		}
		return v
	case PacketSensorConfig:
		v := SensorConfig{SensorIDs: make([]uint8, rng.Intn(MaxCount)+1)}
		rng.Read(v.SensorIDs)
		if rng.Intn(2) == 1 {
			v.NecessaryForAbort = true
			v.ControllerIP = rng.Uint32()
		}
		return v
	case PacketActuatorConfig:
		var v ActuatorConfig
		v.IsAbortController = rng.Intn(2) == 1
		for i := range v.Actuators {
			v.Actuators[i] = AbortActuatorLocation{IP: rng.Uint32(), ActuatorID: uint8(rng.Intn(256)), Purpose: ActuatorPurpose(rng.Intn(int(ActuatorPurposeIgniter) + 1))}
		}
		for i := range v.PTs {
			v.PTs[i] = AbortPTLocation{IP: rng.Uint32(), SensorID: uint8(rng.Intn(256)), Purpose: PTPurpose(rng.Intn(int(PTPurposeLoxInjector) + 1))}
		}
		// at least one used slot
		v.Actuators[0].Purpose = ActuatorPurposePurge
		return v
	case PacketAbort:
		return Abort{}
	case PacketAbortDone:
		return AbortDone{}
	default:
		return ClearAbort{}
	}
}

// ============================================================
// Round Trip Fuzz Tests
// ============================================================

func TestFuzzRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		ts := rng.Uint32()
		version := uint8(rng.Intn(256))
		enc := NewEncoder(WithClock(FixedClock(ts)), WithVersion(version))
		body := randomBody(rng)

		data, err := enc.Marshal(body)
		if err != nil {
			t.Fatalf("round %d: Marshal(%T) failed: %v", i, body, err)
		}
		if len(data) != body.WireSize() {
			t.Fatalf("round %d: size %d, want %d", i, len(data), body.WireSize())
		}

		p, err := NewDecoder().DecodePacket(data)
		if err != nil {
			t.Fatalf("round %d: DecodePacket(%T) failed: %v", i, body, err)
		}
		want := Header{Type: body.PacketType(), Version: version, Timestamp: ts}
		if p.Header != want {
			t.Fatalf("round %d: header %+v, want %+v", i, p.Header, want)
		}
		if !reflect.DeepEqual(p.Body, body) {
			t.Fatalf("round %d: body mismatch for %T", i, body)
		}
	}
}

func TestFuzzTruncation(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	dec := NewDecoder()

	for i := 0; i < rounds; i++ {
		data, err := newTestEncoder().Marshal(randomBody(rng))
		if err != nil {
			t.Fatalf("round %d: Marshal failed: %v", i, err)
		}
		cut := rng.Intn(len(data))
		_, err = dec.DecodePacket(data[:cut])
		if err == nil {
			t.Fatalf("round %d: decoding %d of %d bytes succeeded", i, cut, len(data))
		}
		if !errors.Is(err, ErrBufferTooSmall) && !errors.Is(err, ErrTruncated) {
			t.Fatalf("round %d: error = %v, want ErrBufferTooSmall or ErrTruncated", i, err)
		}
	}
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

func TestFuzzRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	dec := NewDecoder()

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(200))
		rng.Read(data)
		if len(data) > 0 {
			// bias toward known types so bodies get exercised
			data[0] = uint8(rng.Intn(11))
		}

		p, err := dec.DecodePacket(data)
		if err != nil {
			var ce *CodecError
			if !errors.As(err, &ce) {
				t.Fatalf("round %d: error %T is not a *CodecError", i, err)
			}
			continue
		}
		if p.Body.WireSize() > len(data) {
			t.Fatalf("round %d: decoded %d-byte packet from %d bytes", i, p.Body.WireSize(), len(data))
		}
	}
}

func FuzzDecodePacket(f *testing.F) {
	enc := newTestEncoder()
	for _, body := range []Body{
		BoardHeartbeat{BoardType: BoardActuator, BoardID: 3, EngineState: EnginePressurizing, BoardState: BoardStateActive},
		ServerHeartbeat{},
		SensorData{NumSensors: 1, Chunks: []Chunk{{Timestamp: 1, Datapoints: []Datapoint{{SensorID: 1, Value: 2}}}}},
		ActuatorCommands{{ActuatorID: 1, State: 1}},
		SensorConfig{SensorIDs: []uint8{1}, NecessaryForAbort: true, ControllerIP: 1},
		testActuatorConfig(),
		Abort{},
	} {
		data, err := enc.Marshal(body)
		if err != nil {
			f.Fatalf("seed %T: %v", body, err)
		}
		f.Add(data)
	}

	dec := NewDecoder()
	f.Fuzz(func(t *testing.T, data []byte) {
		p, err := dec.DecodePacket(data)
		if err != nil {
			return
		}
		// Anything that decodes must re-encode to a packet that decodes
		// to the same values
		out, err := NewEncoder(WithClock(FixedClock(p.Header.Timestamp)), WithVersion(p.Header.Version)).Marshal(p.Body)
		if err != nil {
			t.Fatalf("re-encode %T failed: %v", p.Body, err)
		}
		if len(out) > len(data) {
			t.Fatalf("re-encoded %d bytes from %d", len(out), len(data))
		}
		again, err := dec.DecodePacket(out)
		if err != nil {
			t.Fatalf("decode of re-encoded %T failed: %v", p.Body, err)
		}
		if !reflect.DeepEqual(again, p) {
			t.Fatalf("re-encoded packet changed: %+v != %+v", again, p)
		}
	})
}
