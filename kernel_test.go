package pneumoresistance

import "testing"

func TestNewKernelBuildsConsistentPopulation(t *testing.T) {
	p := testParameters()
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	k, err := NewKernel(p, nil, nil)
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	if len(k.Hosts) != p.NHosts {
		t.Fatalf("expected %d hosts, got %d", p.NHosts, len(k.Hosts))
	}
	if err := k.Aggregates.verifyCounts(k.Hosts, p.NSerotypes); err != nil {
		t.Fatalf("aggregates inconsistent right after construction: %v", err)
	}
}

func TestKernelRunToCompletionPreservesInvariants(t *testing.T) {
	p := testParameters()
	p.TEnd = 15.0
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	k, err := NewKernel(p, nil, nil)
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	if err := k.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := k.Aggregates.verifyCounts(k.Hosts, p.NSerotypes); err != nil {
		t.Fatalf("aggregates inconsistent after run: %v", err)
	}
	for _, h := range k.Hosts {
		if err := h.verify(k, k.Queue.Time()); err != nil {
			// Hosts whose death precedes the final cursor time are exempt;
			// verify only checks live hosts.
			if h.DeathTime >= k.Queue.Time() {
				t.Fatalf("host %d invariant violation: %v", h.Index, err)
			}
		}
	}
}

func TestKernelRunWithAgeAssortativeMixing(t *testing.T) {
	p := testParameters()
	p.UseRandomMixing = false
	p.TEnd = 10.0
	p.Alpha = make([][]float64, p.NAges)
	for i := range p.Alpha {
		p.Alpha[i] = make([]float64, p.NAges)
		p.Alpha[i][i] = 1.0
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	k, err := NewKernel(p, nil, nil)
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	if err := k.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := k.Aggregates.verifyCounts(k.Hosts, p.NSerotypes); err != nil {
		t.Fatalf("aggregates inconsistent after age-assortative run: %v", err)
	}
}

func TestKernelRunWithCotransmission(t *testing.T) {
	p := testParameters()
	p.TransmissionModel = "cotransmission"
	p.TransmissionScaling = "by_host"
	p.TEnd = 10.0
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	k, err := NewKernel(p, nil, nil)
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	if err := k.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := k.Aggregates.verifyCounts(k.Hosts, p.NSerotypes); err != nil {
		t.Fatalf("aggregates inconsistent after cotransmission run: %v", err)
	}
}

func TestGetFractionResistantIsZeroBeforeInitialColonizations(t *testing.T) {
	p := testParameters()
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	k, err := NewKernel(p, nil, nil)
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	if frac := k.getFractionResistant(); frac != 0 {
		t.Fatalf("expected 0 fraction resistant before init_colonizations fires, got %f", frac)
	}
}
