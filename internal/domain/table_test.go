package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDSetBasics(t *testing.T) {
	s := NewIDSet("a", "b")
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))

	s.Add("c")
	assert.True(t, s.Has("c"))

	s.Union(NewIDSet("d"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, s.Slice())

	clone := s.Clone()
	clone.Add("e")
	assert.False(t, s.Has("e"))
	assert.True(t, s.Equal(NewIDSet("a", "b", "c", "d")))
	assert.False(t, s.Equal(clone))
}

func TestTableKeyMirror(t *testing.T) {
	key := TableKey{Source: NSUniProt, Target: NSGeneSymbol, Organism: OrganismHuman}
	mirror := key.Mirror()

	assert.Equal(t, NSGeneSymbol, mirror.Source)
	assert.Equal(t, NSUniProt, mirror.Target)
	assert.Equal(t, OrganismHuman, mirror.Organism)
	// 镜像是对合的
	assert.Equal(t, key, mirror.Mirror())

	sentinel := key.WithOrganism(NotOrganismSpecific)
	assert.Equal(t, NotOrganismSpecific, sentinel.Organism)
	assert.Equal(t, key.Source, sentinel.Source)
}

func TestMappingTableLookup(t *testing.T) {
	tr := make(Translation)
	tr.Add("P00533", "EGFR")
	tr.Add("P00533", "ERBB1")

	table := NewMappingTable(TableKey{Source: NSUniProt, Target: NSGeneSymbol, Organism: OrganismHuman}, tr, time.Minute)

	got := table.Lookup("P00533")
	assert.True(t, got.Equal(NewIDSet("EGFR", "ERBB1")))

	// 未找到是空集合，不是 nil 语义上的错误
	missing := table.Lookup("Q99999")
	assert.True(t, missing.IsEmpty())

	// 返回的是副本：调用方修改不影响表
	got.Add("INJECTED")
	assert.False(t, table.Lookup("P00533").Has("INJECTED"))
}

func TestMappingTableExpiry(t *testing.T) {
	table := NewMappingTable(TableKey{Source: NSUniProt, Target: NSEntrez}, make(Translation), 10*time.Second)

	now := table.LastUsed()
	assert.False(t, table.IsExpired(now.Add(5*time.Second)))
	assert.True(t, table.IsExpired(now.Add(11*time.Second)))

	// Lookup 刷新 lastUsed，续命
	table.Lookup("anything")
	assert.False(t, table.IsExpired(now.Add(11*time.Second)))
}

func TestMappingTableReversed(t *testing.T) {
	tr := make(Translation)
	tr.Add("P00533", "EGFR")
	tr.Add("P04626", "ERBB2")
	tr.Add("Q15303", "ERBB2") // 多对一

	table := NewMappingTable(TableKey{Source: NSUniProt, Target: NSGeneSymbol, Organism: OrganismHuman}, tr, time.Minute)
	rev := table.Reversed()

	require.Equal(t, table.Key().Mirror(), rev.Key())
	assert.Equal(t, table.Lifetime(), rev.Lifetime())

	assert.True(t, rev.Lookup("EGFR").Equal(NewIDSet("P00533")))
	assert.True(t, rev.Lookup("ERBB2").Equal(NewIDSet("P04626", "Q15303")))

	// 往返语义：x ∈ lookup(id) ⟺ id ∈ reversed.lookup(x)
	table.Each(func(source string, targets IDSet) {
		for target := range targets {
			assert.True(t, rev.Lookup(target).Has(source))
		}
	})
}

func TestParseOrganism(t *testing.T) {
	org, err := ParseOrganism("9606")
	require.NoError(t, err)
	assert.Equal(t, OrganismHuman, org)

	org, err = ParseOrganism("")
	require.NoError(t, err)
	assert.Equal(t, NotOrganismSpecific, org)

	_, err = ParseOrganism("-1")
	assert.Error(t, err)

	_, err = ParseOrganism("human")
	assert.Error(t, err)
}
