package qsim

import "slices"

// ampIsZero reports a matrix entry negligible for algebraic simplification.
func ampIsZero(a complex128) bool {
	return normC(a) <= fpNormEpsilon
}

/*
CircuitGate is one symbolic gate in a Circuit: a target qubit, an ordered
set of control qubits, and a payload map from control permutation to 2x2
matrix. A control permutation absent from the map implies identity. Swaps
have no gate of their own; Circuit.Swap emits their three-CNOT
decomposition.
*/
type CircuitGate struct {
	Target   int
	Payloads map[uint64]*[4]complex128
	Controls []int
}

// NewGate builds an uncontrolled single-qubit gate.
func NewGate(target int, mtrx [4]complex128) *CircuitGate {
	return &CircuitGate{
		Target:   target,
		Payloads: map[uint64]*[4]complex128{0: &mtrx},
	}
}

// NewControlledGate builds a gate that fires on one control permutation.
func NewControlledGate(target int, mtrx [4]complex128, controls []int, perm uint64) *CircuitGate {
	sorted := append([]int(nil), controls...)
	slices.Sort(sorted)
	return &CircuitGate{
		Target:   target,
		Payloads: map[uint64]*[4]complex128{perm: &mtrx},
		Controls: sorted,
	}
}

// NewUniformGate builds a gate with an explicit payload per control
// permutation.
func NewUniformGate(target int, payloads map[uint64]*[4]complex128, controls []int) *CircuitGate {
	sorted := append([]int(nil), controls...)
	slices.Sort(sorted)
	g := &CircuitGate{
		Target:   target,
		Payloads: make(map[uint64]*[4]complex128, len(payloads)),
		Controls: sorted,
	}
	for perm, m := range payloads {
		cp := *m
		g.Payloads[perm] = &cp
	}
	return g
}

// Clone deep-copies the gate.
func (g *CircuitGate) Clone() *CircuitGate {
	clone := &CircuitGate{
		Target:   g.Target,
		Payloads: make(map[uint64]*[4]complex128, len(g.Payloads)),
		Controls: append([]int(nil), g.Controls...),
	}
	for perm, m := range g.Payloads {
		cp := *m
		clone.Payloads[perm] = &cp
	}
	return clone
}

// IsIdentity reports an uncontrolled gate whose only payload is the
// identity within tolerance.
func (g *CircuitGate) IsIdentity() bool {
	if len(g.Controls) != 0 || len(g.Payloads) != 1 {
		return false
	}
	p, ok := g.Payloads[0]
	if !ok {
		return false
	}
	return ampIsZero(p[1]) && ampIsZero(p[2]) && ampIsZero(1-p[0]) && ampIsZero(1-p[3])
}

// IsPhase reports that every payload is diagonal.
func (g *CircuitGate) IsPhase() bool {
	for _, p := range g.Payloads {
		if !ampIsZero(p[1]) || !ampIsZero(p[2]) {
			return false
		}
	}
	return true
}

// IsInvert reports that every payload is anti-diagonal.
func (g *CircuitGate) IsInvert() bool {
	for _, p := range g.Payloads {
		if !ampIsZero(p[0]) || !ampIsZero(p[3]) {
			return false
		}
	}
	return true
}

func (g *CircuitGate) controlsContain(q int) bool {
	_, found := slices.BinarySearch(g.Controls, q)
	return found
}

// CanCombine reports whether other can be fused into this gate: same target
// and same control set.
func (g *CircuitGate) CanCombine(other *CircuitGate) bool {
	if g.Target != other.Target {
		return false
	}
	return slices.Equal(g.Controls, other.Controls)
}

// Clear turns the gate into the explicit identity operator.
func (g *CircuitGate) Clear() {
	g.Controls = nil
	g.Payloads = map[uint64]*[4]complex128{0: {1, 0, 0, 1}}
}

// mul2x2 writes the matrix product l*r into out.
func mul2x2(l, r, out *[4]complex128) {
	out[0] = l[0]*r[0] + l[1]*r[2]
	out[1] = l[0]*r[1] + l[1]*r[3]
	out[2] = l[2]*r[0] + l[3]*r[2]
	out[3] = l[2]*r[1] + l[3]*r[3]
}

/*
Combine fuses other into this gate, payload by payload. Since other applies
after this gate, each product is other's matrix times this one's. Products
that land on the identity drop their payload key; if every key drops, the
gate becomes the explicit identity.
*/
func (g *CircuitGate) Combine(other *CircuitGate) {
	for perm, om := range other.Payloads {
		p, ok := g.Payloads[perm]
		if !ok {
			cp := *om
			g.Payloads[perm] = &cp
			continue
		}

		var out [4]complex128
		mul2x2(om, p, &out)

		if ampIsZero(out[1]) && ampIsZero(out[2]) && ampIsZero(1-out[0]) && ampIsZero(1-out[3]) {
			delete(g.Payloads, perm)
			continue
		}

		*p = out
	}

	if len(g.Payloads) == 0 {
		g.Clear()
	}
}

// TryCombine fuses other into this gate when the combine rule allows it.
func (g *CircuitGate) TryCombine(other *CircuitGate) bool {
	if !g.CanCombine(other) {
		return false
	}
	g.Combine(other)
	return true
}

/*
CanPass reports whether this gate commutes with other, so an append scan may
look past it. Commutation holds only when every shared role is phase-like:
a target sitting in the other's controls must belong to a phase gate, and
equal targets commute only when both gates are phase.
*/
func (g *CircuitGate) CanPass(other *CircuitGate) bool {
	if other.controlsContain(g.Target) {
		if !g.IsPhase() {
			return false
		}
		if g.controlsContain(other.Target) {
			return other.IsPhase()
		}
		return true
	}

	if g.controlsContain(other.Target) {
		return other.IsPhase()
	}

	return g.Target != other.Target || (g.IsPhase() && other.IsPhase())
}

// MakeUniformlyControlledPayload materializes the dense 4*2^len(controls)
// matrix array, filling absent control permutations with identity.
func (g *CircuitGate) MakeUniformlyControlledPayload() []complex128 {
	maxPerm := uint64(1) << len(g.Controls)
	payload := make([]complex128, 4*maxPerm)
	for perm := uint64(0); perm < maxPerm; perm++ {
		base := perm << 2
		m, ok := g.Payloads[perm]
		if !ok {
			payload[base] = 1
			payload[base+3] = 1
			continue
		}
		copy(payload[base:base+4], m[:])
	}
	return payload
}

/*
Circuit is an ordered sequence of symbolic gates, algebraically simplified
as gates are appended and lowered to engine calls at run time. The qubit
count is implied: one past the highest referenced qubit.
*/
type Circuit struct {
	qubitCount int
	gates      []*CircuitGate
}

// NewCircuit returns an empty circuit.
func NewCircuit() *Circuit {
	return &Circuit{}
}

// QubitCount returns one past the highest qubit referenced so far.
func (c *Circuit) QubitCount() int {
	return c.qubitCount
}

// Gates returns the simplified gate sequence.
func (c *Circuit) Gates() []*CircuitGate {
	return append([]*CircuitGate(nil), c.gates...)
}

// GateCount returns the number of gates after simplification.
func (c *Circuit) GateCount() int {
	return len(c.gates)
}

// Clone deep-copies the circuit.
func (c *Circuit) Clone() *Circuit {
	clone := &Circuit{qubitCount: c.qubitCount, gates: make([]*CircuitGate, len(c.gates))}
	for i, g := range c.gates {
		clone.gates[i] = g.Clone()
	}
	return clone
}

/*
AppendGate adds a gate, walking the tail of the sequence backwards: a
predecessor that can combine absorbs the gate in place; a predecessor it
cannot pass pins the insertion point; a gate that passes everything lands at
the front. Identity gates are dropped.
*/
func (c *Circuit) AppendGate(nGate *CircuitGate) {
	if nGate.IsIdentity() {
		return
	}

	if nGate.Target+1 > c.qubitCount {
		c.qubitCount = nGate.Target + 1
	}
	if len(nGate.Controls) > 0 {
		if q := nGate.Controls[len(nGate.Controls)-1]; q+1 > c.qubitCount {
			c.qubitCount = q + 1
		}
	}

	for i := len(c.gates) - 1; i >= 0; i-- {
		if c.gates[i].TryCombine(nGate) {
			if c.gates[i].IsIdentity() {
				c.gates = slices.Delete(c.gates, i, i+1)
			}
			return
		}
		if !c.gates[i].CanPass(nGate) {
			c.gates = slices.Insert(c.gates, i+1, nGate)
			return
		}
	}

	c.gates = slices.Insert(c.gates, 0, nGate)
}

// xMtrx is the Pauli X payload the swap decomposition is built from.
var xMtrx = [4]complex128{0, 1, 1, 0}

/*
Swap adds a swap of two qubits as three CNOT-like gates rather than one
swap gate, to maximize fusibility with neighboring gates. The pair is
normalized to (low, high) order so that repeated swaps on the same qubits
cancel through the combine rule.
*/
func (c *Circuit) Swap(q1, q2 int) {
	if q1 == q2 {
		return
	}
	if q1 > q2 {
		q1, q2 = q2, q1
	}

	c.AppendGate(NewControlledGate(q1, xMtrx, []int{q2}, 1))
	c.AppendGate(NewControlledGate(q2, xMtrx, []int{q1}, 1))
	c.AppendGate(NewControlledGate(q1, xMtrx, []int{q2}, 1))
}

/*
Run lowers the simplified gate stream onto an engine: uncontrolled gates
dispatch as Mtrx, single payloads on the all-ones or all-zeros control
pattern as MCMtrx or MACMtrx, mixed patterns as X-conjugated MCMtrx, and
multi-payload gates as one UniformlyControlledSingleBit call.
*/
func (c *Circuit) Run(e *Engine) error {
	if e.QubitCount() < c.qubitCount {
		return invalidArgf("circuit references %d qubits but engine holds %d", c.qubitCount, e.QubitCount())
	}

	for _, g := range c.gates {
		if err := c.runGate(e, g); err != nil {
			return err
		}
	}
	return nil
}

func (c *Circuit) runGate(e *Engine, g *CircuitGate) error {
	t := g.Target

	if len(g.Controls) == 0 {
		return e.Mtrx(*g.Payloads[0], t)
	}

	if len(g.Payloads) > 1 {
		return e.UniformlyControlledSingleBit(g.Controls, t, g.MakeUniformlyControlledPayload(), nil, 0)
	}

	perms := make([]uint64, 0, len(g.Payloads))
	for perm := range g.Payloads {
		perms = append(perms, perm)
	}
	slices.Sort(perms)

	allOnes := uint64(1)<<len(g.Controls) - 1

	for _, perm := range perms {
		mtrx := *g.Payloads[perm]

		switch perm {
		case allOnes:
			if err := e.MCMtrx(g.Controls, mtrx, t); err != nil {
				return err
			}
		case 0:
			if err := e.MACMtrx(g.Controls, mtrx, t); err != nil {
				return err
			}
		default:
			// Conjugate the off controls with X so the pattern becomes
			// all-ones.
			for j, cq := range g.Controls {
				if perm>>j&1 == 0 {
					if err := e.X(cq); err != nil {
						return err
					}
				}
			}
			if err := e.MCMtrx(g.Controls, mtrx, t); err != nil {
				return err
			}
			for j, cq := range g.Controls {
				if perm>>j&1 == 0 {
					if err := e.X(cq); err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}
